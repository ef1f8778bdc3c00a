package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
)

// summarisationPrompt is the system prompt sent to the LLM when condensing a
// full practice session into closing feedback.
const summarisationPrompt = `You are an interview coach reviewing a full practice session.
Given the per-question feedback below, write 3-5 sentences of closing advice:
name the candidate's strongest habit, the one pattern to fix first, and how
their answers trended across the session. Plain prose, no lists, no JSON.`

// Summariser produces the closing summary for a session report.
type Summariser interface {
	// Summarise condenses the attempted questions of one session into a short
	// coaching paragraph.
	Summarise(ctx context.Context, entries []interview.ReportEntry) (string, error)
}

// LLMSummariser uses an LLM provider to summarise sessions.
type LLMSummariser struct {
	llm llm.Provider
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given provider.
func NewLLMSummariser(provider llm.Provider) *LLMSummariser {
	return &LLMSummariser{llm: provider}
}

// Summarise formats the session's per-question feedback into a single user
// message and asks the model for closing advice.
func (s *LLMSummariser) Summarise(ctx context.Context, entries []interview.ReportEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "Question %d: %s\n", e.Index+1, e.Question)
		if e.Result == nil {
			continue
		}
		if sum := e.Result.Scores.OverallSummary; sum != "" {
			fmt.Fprintf(&sb, "Feedback: %s\n", sum)
		}
		for _, t := range e.Result.Scores.Turns {
			if t.ActionableFeedback != "" {
				fmt.Fprintf(&sb, "Turn %d advice: %s\n", t.TurnIndex+1, t.ActionableFeedback)
			}
		}
		sb.WriteString("\n")
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarisationPrompt,
		Messages: []llm.Message{
			{
				Role:    "user",
				Content: sb.String(),
			},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("summarise: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}
