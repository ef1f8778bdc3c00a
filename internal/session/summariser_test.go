package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
	llmmock "github.com/greenroomhq/greenroom/pkg/provider/llm/mock"
)

func reportEntry(index int, question, summary, feedback string) interview.ReportEntry {
	result := &interview.AnalysisResult{
		Scores: interview.SessionScore{OverallSummary: summary},
	}
	if feedback != "" {
		result.Scores.Turns = []interview.TurnScore{{ActionableFeedback: feedback}}
	}
	return interview.ReportEntry{Index: index, Question: question, Result: result}
}

func TestLLMSummariser_Summarise(t *testing.T) {
	t.Run("empty entries returns empty string", func(t *testing.T) {
		p := &llmmock.Provider{}
		s := NewLLMSummariser(p)

		result, err := s.Summarise(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
		if len(p.CompleteCalls) != 0 {
			t.Errorf("expected no LLM calls for empty input, got %d", len(p.CompleteCalls))
		}
	})

	t.Run("summarises entries via LLM", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{
				Content: "Strong examples throughout; quantify outcomes next time.",
			},
		}
		s := NewLLMSummariser(p)

		entries := []interview.ReportEntry{
			reportEntry(0, "Tell me about yourself", "Clear and direct.", "Open with your current role."),
			reportEntry(2, "Describe a conflict", "Good example, weak close.", ""),
		}

		result, err := s.Summarise(context.Background(), entries)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Strong examples throughout; quantify outcomes next time." {
			t.Errorf("unexpected result: %q", result)
		}

		if len(p.CompleteCalls) != 1 {
			t.Fatalf("expected 1 Complete call, got %d", len(p.CompleteCalls))
		}

		call := p.CompleteCalls[0]
		if call.Req.SystemPrompt != summarisationPrompt {
			t.Errorf("expected summarisation prompt, got %q", call.Req.SystemPrompt)
		}
		if len(call.Req.Messages) != 1 {
			t.Fatalf("expected 1 message in request, got %d", len(call.Req.Messages))
		}
		content := call.Req.Messages[0].Content
		if !strings.Contains(content, "Question 1: Tell me about yourself") {
			t.Errorf("missing first question in content: %q", content)
		}
		if !strings.Contains(content, "Question 3: Describe a conflict") {
			t.Errorf("missing 1-based index for entry 2 in content: %q", content)
		}
		if !strings.Contains(content, "Open with your current role.") {
			t.Errorf("missing per-turn advice in content: %q", content)
		}
	})

	t.Run("propagates LLM errors", func(t *testing.T) {
		p := &llmmock.Provider{
			CompleteErr: errors.New("model overloaded"),
		}
		s := NewLLMSummariser(p)

		entries := []interview.ReportEntry{
			reportEntry(0, "Tell me about yourself", "fine", ""),
		}

		_, err := s.Summarise(context.Background(), entries)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "model overloaded") {
			t.Errorf("expected wrapped error, got %v", err)
		}
	})
}
