package health

import (
	"context"
	"fmt"
	"os/exec"
)

// Pinger is the minimal surface a connection-pooled dependency needs to
// expose for a readiness probe. The Postgres archive satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckFFmpeg verifies the ffmpeg binary is on PATH. Audio uploads in
// non-WAV containers cannot be decoded without it.
func CheckFFmpeg() Checker {
	return Checker{
		Name: "ffmpeg",
		Check: func(_ context.Context) error {
			if _, err := exec.LookPath("ffmpeg"); err != nil {
				return fmt.Errorf("ffmpeg not found on PATH: %w", err)
			}
			return nil
		},
	}
}

// CheckArchive probes the practice-history database.
func CheckArchive(p Pinger) Checker {
	return Checker{
		Name: "archive",
		Check: func(ctx context.Context) error {
			return p.Ping(ctx)
		},
	}
}

// QuestionSource is the slice of the question manager a readiness probe
// needs: a session cannot start from an empty set.
type QuestionSource interface {
	Len() int
}

// CheckQuestions verifies at least one interview question is loaded.
func CheckQuestions(src QuestionSource) Checker {
	return Checker{
		Name: "questions",
		Check: func(_ context.Context) error {
			if src.Len() == 0 {
				return fmt.Errorf("question set is empty")
			}
			return nil
		},
	}
}
