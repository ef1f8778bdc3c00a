package analysis

import (
	"errors"
	"fmt"
)

// ErrEmptyClip is returned by Analyze when the submitted clip contains no
// audio data. Callers are expected to gate empty captures before calling
// Analyze; this error is the backstop for the ones that slip through.
var ErrEmptyClip = errors.New("analysis: empty audio clip")

// TranscriptionError is the only fatal failure mode of an Analyze call: the
// transcription collaborator was unreachable, timed out, or could not use the
// input. No partial result accompanies it — downstream stages never ran.
//
// Scoring and rewrite failures are deliberately NOT represented as errors;
// they degrade the result in place (unknown criteria, omitted rewrites)
// because a transcript has standalone value.
type TranscriptionError struct {
	// Stage names the step that failed: "decode" or "transcribe".
	Stage string

	// Cause is the underlying collaborator error.
	Cause error
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("analysis: transcription failed at %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *TranscriptionError) Unwrap() error { return e.Cause }

// IsTranscriptionError reports whether err is (or wraps) a [TranscriptionError].
func IsTranscriptionError(err error) bool {
	var te *TranscriptionError
	return errors.As(err, &te)
}
