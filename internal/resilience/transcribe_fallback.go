package resilience

import (
	"context"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
)

// TranscribeFallback implements [transcribe.Transcriber] with automatic
// failover across multiple speech-to-text backends (e.g., an in-process
// whisper.cpp model backed up by a whisper-server instance). Each backend has
// its own circuit breaker. Transcription failures are fatal to an analysis,
// so this is the one seam where redundancy pays for itself.
type TranscribeFallback struct {
	group *FallbackGroup[transcribe.Transcriber]
}

// Compile-time interface assertion.
var _ transcribe.Transcriber = (*TranscribeFallback)(nil)

// NewTranscribeFallback creates a [TranscribeFallback] with primary as the
// preferred backend.
func NewTranscribeFallback(primary transcribe.Transcriber, primaryName string, cfg FallbackConfig) *TranscribeFallback {
	return &TranscribeFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscribeFallback) AddFallback(name string, t transcribe.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the clip against the first healthy backend. If the primary
// fails, subsequent fallbacks are tried with the same request.
func (f *TranscribeFallback) Transcribe(ctx context.Context, req transcribe.Request) ([]interview.Segment, error) {
	return ExecuteWithResult(f.group, func(t transcribe.Transcriber) ([]interview.Segment, error) {
		return t.Transcribe(ctx, req)
	})
}
