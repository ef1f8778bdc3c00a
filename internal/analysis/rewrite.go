package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
)

// rewriteTemperature is higher than scoring: rewrites should read naturally,
// not deterministically.
const rewriteTemperature = 0.6

// isStrongTurn reports whether a scored turn met at least three of the four
// key criteria (direct answer, specific example, quantified impact, crisp
// takeaway). Unknown counts as not met here, which biases rewrite selection
// toward degraded turns — the ones most in need of a model answer.
func isStrongTurn(s interview.TurnScore) bool {
	met := 0
	for _, c := range []interview.Criterion{
		s.Criteria.DirectAnswer,
		s.Criteria.SpecificExample,
		s.Criteria.QuantifiedImpact,
		s.Criteria.CrispTakeaway,
	} {
		if c.Met.Met() {
			met++
		}
	}
	return met >= 3
}

// selectRewriteTargets picks which scored turns get rewrites: weak turns
// first, capped at max; when every turn is strong, the first max turns are
// rewritten anyway so the feature is never silently absent.
func selectRewriteTargets(scores []interview.TurnScore, max int) []interview.TurnScore {
	if max <= 0 || len(scores) == 0 {
		return nil
	}

	weak := make([]interview.TurnScore, 0, len(scores))
	for _, s := range scores {
		if !isStrongTurn(s) {
			weak = append(weak, s)
		}
	}
	targets := weak
	if len(targets) == 0 {
		targets = scores
	}
	if len(targets) > max {
		targets = targets[:max]
	}
	return targets
}

// generateRewrites asks the rewrite provider for both variants of each target
// turn. All failures are non-fatal: a failed turn is simply absent from the
// returned slice, and an empty slice means rewrites are omitted entirely.
func (a *Analyzer) generateRewrites(ctx context.Context, turns []interview.Turn, scores []interview.TurnScore) []interview.RewriteSuggestion {
	targets := selectRewriteTargets(scores, a.cfg.MaxRewrites)
	if len(targets) == 0 {
		return nil
	}

	var transcript strings.Builder
	for i, t := range turns {
		fmt.Fprintf(&transcript, "Turn %d: %s\n", i, t.Text())
	}

	results := make([]*interview.RewriteSuggestion, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			if rw, ok := a.rewriteTurn(gctx, transcript.String(), target); ok {
				results[i] = &rw
			}
			return nil
		})
	}
	g.Wait() // workers never return errors; degradation is per-turn

	out := make([]interview.RewriteSuggestion, 0, len(targets))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// rewriteTurn requests both rewrite variants for one turn with a bounded call.
func (a *Analyzer) rewriteTurn(ctx context.Context, transcript string, score interview.TurnScore) (interview.RewriteSuggestion, bool) {
	if strings.TrimSpace(score.Text) == "" {
		return interview.RewriteSuggestion{}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.RewriteTimeout)
	defer cancel()

	start := time.Now()
	resp, err := a.rewriter.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: rewriteSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: rewriteUserPrompt(transcript, score)},
		},
		Temperature: rewriteTemperature,
	})
	a.metrics.RewriteDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("rewrite failed, omitting", "turn", score.TurnIndex, "err", err)
		return interview.RewriteSuggestion{}, false
	}

	obj := extractJSON(resp.Content)
	if obj == nil {
		slog.Warn("rewrite returned no parseable JSON, omitting", "turn", score.TurnIndex)
		return interview.RewriteSuggestion{}, false
	}

	rw := interview.RewriteSuggestion{
		TurnIndex:    score.TurnIndex,
		Tight45s:     coerceString(obj["tight_45s"]),
		Expanded2min: coerceString(obj["expanded_2min"]),
	}
	if rw.Tight45s == "" && rw.Expanded2min == "" {
		return interview.RewriteSuggestion{}, false
	}
	return rw, true
}
