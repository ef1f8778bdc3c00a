package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
)

// scoreTemperature keeps structured-JSON scoring near-deterministic.
const scoreTemperature = 0.2

// degradedFeedback is the actionable-feedback text attached when scoring was
// unavailable for a turn.
const degradedFeedback = "Scoring was unavailable for this answer. The transcript and pace are still shown."

// scoreTurn scores one turn with a bounded call to the scoring provider.
// It never returns an error: on timeout, provider failure, or an unparseable
// reply it returns a degraded score (all criteria unknown, locally-computed
// pace and filler count) and ok=false. The transcript always survives.
func (a *Analyzer) scoreTurn(ctx context.Context, index int, t interview.Turn) (score interview.TurnScore, ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ScoreTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.scorer.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: scoreSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: scoreUserPrompt(t)},
		},
		Temperature: scoreTemperature,
	})
	a.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("turn scoring failed, degrading to unknown criteria",
			"turn", index, "err", err)
		return a.degradedScore(index, t), false
	}

	obj := extractJSON(resp.Content)
	if obj == nil {
		slog.Warn("turn scoring returned no parseable JSON, degrading to unknown criteria",
			"turn", index, "reply_len", len(resp.Content))
		return a.degradedScore(index, t), false
	}

	return a.normalizeScore(index, t, obj), true
}

// normalizeScore maps a raw scorer reply onto a TurnScore. Every field passes
// through the coerce* helpers so missing or mistyped values land on their
// neutral defaults. TurnIndex, Text, and Pace are always set locally; the
// scorer is not trusted for any of them.
func (a *Analyzer) normalizeScore(index int, t interview.Turn, obj map[string]json.RawMessage) interview.TurnScore {
	score := interview.TurnScore{
		TurnIndex: index,
		Text:      t.Text(),
		Criteria: interview.CriteriaSet{
			DirectAnswer:     coerceCriterion(obj["direct_answer_10s"]),
			SpecificExample:  coerceCriterion(obj["specific_example"]),
			QuantifiedImpact: coerceCriterion(obj["quantified_impact"]),
			Tradeoffs:        coerceCriterion(obj["tradeoffs_mentioned"]),
			CrispTakeaway:    coerceCriterion(obj["crisp_takeaway"]),
		},
		FillerCount:        coerceCount(obj["filler_count"]),
		LongPauses:         coerceCount(obj["long_pauses"]),
		TrailingSentences:  coerceCriterion(obj["trailing_sentences"]),
		Pace:               computePace(t),
		QuestionType:       coerceQuestionType(obj["question_type"]),
		ActionableFeedback: coerceString(obj["actionable_feedback"]),
	}

	// Older prompt revisions used "tradeoffs"; accept it as an alias.
	if !score.Criteria.Tradeoffs.Met.Known() {
		if raw, exists := obj["tradeoffs"]; exists {
			score.Criteria.Tradeoffs = coerceCriterion(raw)
		}
	}

	// Relevance is only meaningful when the caller supplied role context;
	// without it the criterion stays unknown even if the scorer invented one.
	if t.JobDescription != "" {
		score.RelevanceToRole = coerceCriterion(obj["relevance_to_role"])
	}

	return score
}

// degradedScore builds the unknown-valued score for a turn whose scoring call
// failed. Pace and filler count are computed locally from the transcript so
// the degraded feedback is not completely empty.
func (a *Analyzer) degradedScore(index int, t interview.Turn) interview.TurnScore {
	return interview.TurnScore{
		TurnIndex:          index,
		Text:               t.Text(),
		FillerCount:        estimateFillerCount(t.Text()),
		Pace:               computePace(t),
		QuestionType:       interview.QuestionUnknown,
		ActionableFeedback: degradedFeedback,
	}
}

// summarize produces the overall session summary for the scored turns.
// Failure is non-fatal and yields a canned fallback line; per-turn scores are
// already in hand by the time this runs.
func (a *Analyzer) summarize(ctx context.Context, turns []interview.Turn, anyScored bool) string {
	if !anyScored {
		return "Scoring was unavailable for this recording. Check that the scoring provider is reachable."
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ScoreTimeout)
	defer cancel()

	resp, err := a.scorer.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: summaryUserPrompt(turns)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		slog.Warn("overall summary failed", "err", err)
		return fmt.Sprintf("Scored %d answer(s); an overall summary could not be generated.", len(turns))
	}
	return resp.Content
}
