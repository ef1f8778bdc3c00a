// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Microsoft Edge
// neural voices, or a local Piper instance) and presents a uniform streaming
// interface. The primary entry point is SynthesizeStream, which accepts a
// channel of text fragments and returns a channel of audio bytes as they
// become available — enabling playback of a spoken interview question to
// begin before synthesis of the whole sentence has finished.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"fmt"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., several practice rooms asking questions
// at once).
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits audio byte chunks as they are synthesised.
	// The encoding of the chunks (MP3 frames, raw PCM, …) is fixed by the
	// provider's configured output format.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain the
	// audio channel to avoid blocking the provider's internal goroutines.
	//
	// voice specifies the voice profile to use for synthesis. Providers should
	// return an error if the requested voice is not available.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	//
	// Returns an error if the provider cannot be reached or if ctx is
	// cancelled before the list is retrieved.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// Synthesize is a convenience wrapper for callers that have the full text up
// front and want the complete audio back in one buffer (e.g., the HTTP
// endpoint that returns a question as a downloadable clip). It feeds text as
// a single fragment and concatenates every chunk until the stream ends.
func Synthesize(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, err
	}

	var out []byte
	for chunk := range audioCh {
		out = append(out, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tts: synthesis cancelled: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tts: synthesis produced no audio for voice %q", voice.ID)
	}
	return out, nil
}
