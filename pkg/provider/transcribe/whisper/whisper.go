// Package whisper provides a local whisper.cpp-backed transcription provider
// using the official Go bindings (CGO). The whisper.cpp static library
// (libwhisper.a) and headers (whisper.h) must be available at link time via
// LIBRARY_PATH and C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across all transcriptions;
// each Transcribe call creates its own whisper context, so concurrent calls
// do not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
)

const defaultLanguage = "en"

// Compile-time assertion that Provider satisfies transcribe.Transcriber.
var _ transcribe.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithThreads sets the number of CPU threads whisper.cpp may use per
// inference. Zero (the default) lets the bindings pick.
func WithThreads(n uint) Option {
	return func(p *Provider) { p.threads = n }
}

// Provider implements transcribe.Transcriber using the whisper.cpp Go
// bindings, eliminating HTTP overhead entirely.
type Provider struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// New creates a Provider that loads the whisper.cpp model from the given file
// path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference over the whole clip and returns the
// recognised segments with start/end offsets in seconds.
//
// The bindings expose no mid-inference cancellation hook, so ctx is checked
// before inference starts and again before segments are collected; a clip of
// typical answer length (well under two minutes of 16 kHz mono audio)
// completes in a few seconds on CPU.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) ([]interview.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(req.PCM) == 0 {
		return nil, nil
	}

	samples := pcmToFloat32(req.PCM)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines, so a fresh context per call is the concurrency unit.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context cancelled: %w", err)
	}

	var segments []interview.Segment
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, interview.Segment{
			Text:  text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
		})
	}

	return segments, nil
}
