package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
	trmock "github.com/greenroomhq/greenroom/pkg/provider/transcribe/mock"
)

func TestTranscribeFallback_PrimarySuccess(t *testing.T) {
	primary := &trmock.Transcriber{
		Segments: []interview.Segment{{Text: "from primary", Start: 0, End: 2}},
	}
	secondary := &trmock.Transcriber{
		Segments: []interview.Segment{{Text: "from secondary", Start: 0, End: 2}},
	}

	fb := NewTranscribeFallback(primary, "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-server", secondary)

	segs, err := fb.Transcribe(context.Background(), transcribe.Request{PCM: []byte{1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "from primary" {
		t.Fatalf("segments = %+v, want primary's", segs)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTranscribeFallback_Failover(t *testing.T) {
	primary := &trmock.Transcriber{Err: errors.New("model not loaded")}
	secondary := &trmock.Transcriber{
		Segments: []interview.Segment{{Text: "from secondary", Start: 0, End: 2}},
	}

	fb := NewTranscribeFallback(primary, "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-server", secondary)

	segs, err := fb.Transcribe(context.Background(), transcribe.Request{PCM: []byte{1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "from secondary" {
		t.Fatalf("segments = %+v, want secondary's", segs)
	}
}

func TestTranscribeFallback_AllFail(t *testing.T) {
	primary := &trmock.Transcriber{Err: errors.New("model not loaded")}
	secondary := &trmock.Transcriber{Err: errors.New("server unreachable")}

	fb := NewTranscribeFallback(primary, "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-server", secondary)

	_, err := fb.Transcribe(context.Background(), transcribe.Request{PCM: []byte{1, 2}})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscribeFallback_SilenceIsNotFailure(t *testing.T) {
	primary := &trmock.Transcriber{} // no segments, no error
	secondary := &trmock.Transcriber{
		Segments: []interview.Segment{{Text: "never", Start: 0, End: 1}},
	}

	fb := NewTranscribeFallback(primary, "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("whisper-server", secondary)

	segs, err := fb.Transcribe(context.Background(), transcribe.Request{PCM: []byte{1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("silence triggered failover: %+v", segs)
	}
}
