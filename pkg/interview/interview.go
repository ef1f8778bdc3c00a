// Package interview defines the data model exchanged between the greenroom
// analysis pipeline, the guided-session controller, and the rendering
// surfaces (HTTP API, Discord embeds, MCP tools).
//
// The types here are purely structural. Every type has a usable zero value so
// that a partially-failed scoring pass can still be rendered: an absent
// criterion is [TristateUnknown] (never false), an absent pace is a nil WPM
// with [PaceUnknown]. Validation and normalization of collaborator responses
// live in the analysis package, not here.
package interview

import "strings"

// Segment is one contiguous span of transcribed speech within an audio unit.
// Start and End are offsets in seconds from the beginning of the recording.
//
// Within a single audio unit segments are ordered by non-decreasing Start,
// do not overlap, and satisfy Start < End.
type Segment struct {
	// Text is the transcribed speech for this span.
	Text string `json:"text"`

	// Start is the span's start offset in seconds.
	Start float64 `json:"start"`

	// End is the span's end offset in seconds. Always greater than Start.
	End float64 `json:"end"`
}

// Duration returns the span length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Turn is one user answer: the ordered segments produced for a single
// captured audio unit (or, in free-form mode, one pause-delimited slice of
// it), plus the context needed to score it.
type Turn struct {
	// Segments is the ordered transcript of the answer.
	Segments []Segment

	// QuestionText is the question this answer responds to.
	// Empty in free-form mode.
	QuestionText string

	// JobDescription is optional role context used for relevance scoring.
	JobDescription string
}

// Text returns the full answer text, segments joined by single spaces.
func (t Turn) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

// Start returns the start offset of the first segment, or 0 for an empty turn.
func (t Turn) Start() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[0].Start
}

// End returns the end offset of the last segment, or 0 for an empty turn.
func (t Turn) End() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}

// Criterion is one rubric judgement: whether the criterion was met, and a
// short supporting note. Met is tri-valued; an unevaluated criterion stays
// [TristateUnknown] and must never be displayed or aggregated as "not met".
type Criterion struct {
	Met  Tristate `json:"met"`
	Note string   `json:"note"`
}

// CriteriaSet holds the five fixed communication-rubric criteria applied to
// every answer. Field order matches the rubric's canonical presentation.
type CriteriaSet struct {
	// DirectAnswer: the answer opens with a direct response within ~10 seconds.
	DirectAnswer Criterion `json:"direct_answer_10s"`

	// SpecificExample: at least one concrete, named example is given.
	SpecificExample Criterion `json:"specific_example"`

	// QuantifiedImpact: impact is quantified (numbers, percentages, scale).
	QuantifiedImpact Criterion `json:"quantified_impact"`

	// Tradeoffs: alternatives or trade-offs are acknowledged.
	Tradeoffs Criterion `json:"tradeoffs_mentioned"`

	// CrispTakeaway: the answer closes with a crisp takeaway or result.
	CrispTakeaway Criterion `json:"crisp_takeaway"`
}

// Pace describes speaking speed derived from the transcript timestamps.
// WPM is nil when no usable timing was available (e.g. a pasted transcript).
type Pace struct {
	// WPM is words per minute, nil when unknown.
	WPM *float64 `json:"wpm"`

	// Rating buckets WPM into slow / good / fast, or unknown when WPM is nil.
	Rating PaceRating `json:"rating"`

	// Feedback is a one-line human-readable remark about the pace.
	Feedback string `json:"feedback"`
}

// TurnScore is the full scored result for one Turn.
type TurnScore struct {
	// TurnIndex is the zero-based position of the turn within its audio unit.
	TurnIndex int `json:"turn_index"`

	// Text is the answer text that was scored, echoed for rendering.
	Text string `json:"text"`

	// Criteria holds the five rubric judgements.
	Criteria CriteriaSet `json:"criteria"`

	// FillerCount is the number of filler words ("um", "uh", "like", …). ≥ 0.
	FillerCount int `json:"filler_count"`

	// LongPauses is the number of noticeable pauses mid-answer. ≥ 0.
	LongPauses int `json:"long_pauses"`

	// TrailingSentences flags answers that trail off instead of finishing.
	TrailingSentences Criterion `json:"trailing_sentences"`

	// Pace is computed locally from the transcript, never taken from the scorer.
	Pace Pace `json:"pace"`

	// RelevanceToRole is only meaningful when a job description was supplied.
	RelevanceToRole Criterion `json:"relevance_to_role"`

	// QuestionType classifies the question that was being answered.
	QuestionType QuestionType `json:"question_type"`

	// ActionableFeedback is the scorer's free-text coaching advice.
	ActionableFeedback string `json:"actionable_feedback"`
}

// SessionScore aggregates the scored turns of one audio unit together with an
// overall free-text summary.
type SessionScore struct {
	Turns          []TurnScore `json:"turns"`
	OverallSummary string      `json:"overall_summary"`
}

// RewriteSuggestion proposes rewritten versions of one answer. Either variant
// may be empty when the rewrite collaborator did not produce it.
type RewriteSuggestion struct {
	// TurnIndex identifies which turn the rewrites belong to.
	TurnIndex int `json:"turn_index"`

	// Tight45s is a ~45-second tightened version of the answer.
	Tight45s string `json:"tight_45s,omitempty"`

	// Expanded2min is a ~2-minute expanded version of the answer.
	Expanded2min string `json:"expanded_2min,omitempty"`
}

// AnalysisResult is the analysis pipeline's output for one audio unit.
// Any of the three fields may be empty when the corresponding stage was
// skipped, failed non-fatally, or yielded nothing.
type AnalysisResult struct {
	Segments []Segment           `json:"segments"`
	Scores   SessionScore        `json:"scores"`
	Rewrites []RewriteSuggestion `json:"rewrites"`
}

// Empty reports whether the result carries no transcript at all
// (the short-circuit outcome for silent or zero-byte captures).
func (r *AnalysisResult) Empty() bool {
	return r == nil || len(r.Segments) == 0
}
