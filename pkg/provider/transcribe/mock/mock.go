// Package mock provides a test double for the transcribe package interface.
//
// Use Transcriber to feed controlled segment lists to the analysis pipeline
// and inspect the PCM buffers that were submitted.
//
// Example:
//
//	tr := &mock.Transcriber{
//	    Segments: []interview.Segment{{Text: "hello", Start: 0, End: 1.2}},
//	}
//	segs, err := tr.Transcribe(ctx, transcribe.Request{PCM: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe. The PCM slice is not copied;
	// callers must not mutate it after submission.
	Req transcribe.Request
}

// Transcriber is a mock implementation of transcribe.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Segments is returned by every Transcribe call.
	Segments []interview.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Gate, if non-nil, blocks Transcribe until the channel is closed or the
	// call's context is cancelled. Use this to hold a transcription in flight
	// while the test drives other events.
	Gate chan struct{}

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call, waits on Gate if set, and returns Segments, Err.
func (t *Transcriber) Transcribe(ctx context.Context, req transcribe.Request) ([]interview.Segment, error) {
	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Ctx: ctx, Req: req})
	gate := t.Gate
	segs := t.Segments
	err := t.Err
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return segs, nil
}

// SetResult replaces the scripted Segments and Err for subsequent calls.
// Thread-safe; use between submissions in retry scenarios.
func (t *Transcriber) SetResult(segs []interview.Segment, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Segments = segs
	t.Err = err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

// Ensure Transcriber implements transcribe.Transcriber at compile time.
var _ transcribe.Transcriber = (*Transcriber)(nil)
