package session

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuestionSet is returned by Start when the question set has no
	// entries. A guided session never starts empty.
	ErrEmptyQuestionSet = errors.New("session: empty question set")

	// ErrSessionActive is returned by Start while a session is already
	// running. Abort it first.
	ErrSessionActive = errors.New("session: a session is already active")

	// ErrInvalidTransition is returned when a user action does not apply to
	// the current state (e.g. "next" before any feedback exists).
	ErrInvalidTransition = errors.New("session: invalid transition")

	// ErrPlaybackInProgress is returned by StartCapture while the question is
	// still being read aloud.
	ErrPlaybackInProgress = errors.New("session: question playback in progress")

	// ErrCaptureInProgress is returned by StartCapture when a recording is
	// already running.
	ErrCaptureInProgress = errors.New("session: capture already in progress")
)

// PlaybackError wraps a voice-playback failure. It is never fatal: the
// controller logs it and opens capture as if playback had completed.
type PlaybackError struct {
	Cause error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("question playback failed: %v", e.Cause)
}

func (e *PlaybackError) Unwrap() error { return e.Cause }
