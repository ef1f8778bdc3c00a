package interview

import (
	"sort"
	"time"
)

// QuestionSource records how a question set was assembled.
type QuestionSource string

const (
	// SourceDefault is the built-in question list.
	SourceDefault QuestionSource = "default"

	// SourceAdapted is a set tailored to a job description (merged with defaults).
	SourceAdapted QuestionSource = "adapted"
)

// QuestionSet is an ordered list of interview prompts. Order is stable once a
// guided session starts; appends go to the end and never reorder
// already-visited questions.
type QuestionSet struct {
	Questions []string       `json:"questions"`
	Source    QuestionSource `json:"source"`
}

// Len returns the number of questions in the set.
func (qs QuestionSet) Len() int { return len(qs.Questions) }

// Clone returns an independent copy of the set.
func (qs QuestionSet) Clone() QuestionSet {
	out := QuestionSet{Source: qs.Source}
	out.Questions = append(out.Questions, qs.Questions...)
	return out
}

// GuidedSession is the snapshot of one guided interview. It is a plain value:
// the controller owns the live state and hands out copies, so callers can
// render or test against a snapshot without racing the state machine.
type GuidedSession struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	// Questions is the set fixed when the session started.
	Questions QuestionSet `json:"questions"`

	// Index is the zero-based current question. Monotonically increasing
	// except on retry, which keeps it in place.
	Index int `json:"index"`

	// Results maps question index → stored analysis result. Sparse: an index
	// the user never attempted (or whose capture was empty and never retried)
	// may be absent or hold an empty result. Retry overwrites in place.
	Results map[int]*AnalysisResult `json:"results"`

	// State is the controller's current state tag.
	State SessionState `json:"state"`

	// StartedAt is when the session left Setup.
	StartedAt time.Time `json:"started_at"`
}

// CurrentQuestion returns the question at the current index, or "" when the
// index is out of range (e.g. after Complete).
func (g GuidedSession) CurrentQuestion() string {
	if g.Index < 0 || g.Index >= len(g.Questions.Questions) {
		return ""
	}
	return g.Questions.Questions[g.Index]
}

// AttemptedIndices returns the sorted indices that hold a stored result.
func (g GuidedSession) AttemptedIndices() []int {
	idx := make([]int, 0, len(g.Results))
	for i := range g.Results {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// Clone returns a deep copy of the session snapshot. The AnalysisResult
// values themselves are shared (they are immutable once stored).
func (g GuidedSession) Clone() GuidedSession {
	out := g
	out.Questions = g.Questions.Clone()
	out.Results = make(map[int]*AnalysisResult, len(g.Results))
	for i, r := range g.Results {
		out.Results[i] = r
	}
	return out
}

// ReportEntry is one attempted question in a session report.
type ReportEntry struct {
	// Index is the question's position in the set.
	Index int `json:"index"`

	// Question is the prompt text.
	Question string `json:"question"`

	// Result is the stored analysis for this question's final attempt.
	Result *AnalysisResult `json:"result"`
}

// SessionReport is the Complete-state aggregation of a guided session:
// one entry per attempted question, in question order, plus the indices the
// user skipped and an overall session summary.
type SessionReport struct {
	SessionID      string        `json:"session_id"`
	Entries        []ReportEntry `json:"entries"`
	Unattempted    []int         `json:"unattempted"`
	OverallSummary string        `json:"overall_summary"`
}
