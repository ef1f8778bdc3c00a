// Package transcribe defines the Transcriber interface for batch
// speech-to-text backends.
//
// Unlike a live captioning pipeline, interview analysis works on finished
// answer recordings: the whole clip is available before transcription starts,
// and the caller needs word timing only at segment granularity. A Transcriber
// therefore accepts one complete PCM buffer and returns the recognised
// segments with start/end offsets, which downstream turn grouping and pause
// detection depend on.
//
// Implementations must be safe for concurrent use. Multiple transcriptions
// may run simultaneously (e.g., several practice sessions analysing answers
// at once).
package transcribe

import (
	"context"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// Request describes one batch transcription job.
type Request struct {
	// PCM is raw 16-bit signed little-endian audio at SampleRate, mono.
	// Use audio.Transcoder to produce it from an uploaded clip.
	PCM []byte

	// SampleRate is the sample rate of PCM in Hz. Zero means the provider
	// default (16000).
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string uses the provider default.
	Language string
}

// Transcriber is the abstraction over any batch speech-to-text backend.
//
// Transcribe blocks until the whole clip is processed or ctx is cancelled.
// The returned segments are ordered by start time; offsets are seconds from
// the beginning of the clip. A clip that contains no recognisable speech
// yields an empty (or nil) slice and a nil error — silence is a valid result,
// not a failure.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) ([]interview.Segment, error)
}
