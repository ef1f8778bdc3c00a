package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("whisper-local", "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("whisper-server", "whisper-server")

	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "whisper-local" {
		t.Fatalf("called = %q, want the local transcriber", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("whisper-local", "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("whisper-server", "whisper-server")

	var called string
	err := fg.Execute(func(v string) error {
		if v == "whisper-local" {
			return errProviderDown
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "whisper-server" {
		t.Fatalf("called = %q, want the server transcriber", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("whisper-local", "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("whisper-server", "whisper-server")

	err := fg.Execute(func(v string) error {
		return errProviderDown
	})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	fg := NewFallbackGroup("whisper-local", "whisper-local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("whisper-server", "whisper-server")

	// Fail the local transcriber enough to open its breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "whisper-local" {
				return errProviderDown
			}
			return nil
		})
	}

	// With the local breaker open, calls should go to the server backend.
	var called string
	err := fg.Execute(func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "whisper-server" {
		t.Fatalf("called = %q, want the server transcriber once the local circuit opens", called)
	}
}

func TestExecuteWithResult_Success(t *testing.T) {
	fg := NewFallbackGroup(16000, "local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("server", 24000)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 16000 {
			return "transcript-local", nil
		}
		return "transcript-server", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "transcript-local" {
		t.Fatalf("result = %q, want transcript-local", result)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(16000, "local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("server", 24000)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 16000 {
			return "", errProviderDown
		}
		return "transcript-server", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "transcript-server" {
		t.Fatalf("result = %q, want transcript-server", result)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(16000, "local", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(v int) (string, error) {
		return "", errProviderDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
