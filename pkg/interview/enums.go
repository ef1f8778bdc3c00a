package interview

// QuestionType classifies an interview question. Scorer responses with an
// unrecognised classification are coerced to [QuestionUnknown].
type QuestionType string

const (
	QuestionBehavioral   QuestionType = "Behavioral"
	QuestionProductSense QuestionType = "Product-sense"
	QuestionTechnical    QuestionType = "Technical"
	QuestionEstimation   QuestionType = "Estimation"
	QuestionUnknown      QuestionType = "Unknown"
)

// IsValid reports whether q is one of the recognised classifications.
func (q QuestionType) IsValid() bool {
	switch q {
	case QuestionBehavioral, QuestionProductSense, QuestionTechnical,
		QuestionEstimation, QuestionUnknown:
		return true
	}
	return false
}

// PaceRating buckets a words-per-minute measurement.
type PaceRating string

const (
	PaceSlow    PaceRating = "slow"
	PaceGood    PaceRating = "good"
	PaceFast    PaceRating = "fast"
	PaceUnknown PaceRating = "unknown"
)

// IsValid reports whether p is a recognised pace rating.
func (p PaceRating) IsValid() bool {
	switch p {
	case PaceSlow, PaceGood, PaceFast, PaceUnknown:
		return true
	}
	return false
}

// SessionState is the guided-session controller's current state tag.
type SessionState string

const (
	// StateSetup: the question set is being assembled; nothing recorded yet.
	StateSetup SessionState = "setup"

	// StateActive: a question is presented and an answer can be captured.
	StateActive SessionState = "active"

	// StateAnalyzing: a captured answer is being analyzed; capture is locked.
	StateAnalyzing SessionState = "analyzing"

	// StateFeedback: the current question's result is available for review.
	StateFeedback SessionState = "feedback"

	// StateComplete: terminal; all questions visited, summary available.
	StateComplete SessionState = "complete"
)

// IsValid reports whether s is a recognised session state.
func (s SessionState) IsValid() bool {
	switch s {
	case StateSetup, StateActive, StateAnalyzing, StateFeedback, StateComplete:
		return true
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateComplete
}
