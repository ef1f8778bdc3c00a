package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/pkg/history"
	histmock "github.com/greenroomhq/greenroom/pkg/history/mock"
	"github.com/greenroomhq/greenroom/pkg/interview"
	embmock "github.com/greenroomhq/greenroom/pkg/provider/embeddings/mock"
)

func completedSession() (interview.GuidedSession, *interview.SessionReport) {
	result := &interview.AnalysisResult{
		Segments: []interview.Segment{
			{Text: "I led the migration.", Start: 0, End: 4},
			{Text: "It cut latency by half.", Start: 4, End: 8},
		},
		Scores: interview.SessionScore{
			Turns: []interview.TurnScore{{
				Text:        "I led the migration. It cut latency by half.",
				FillerCount: 1,
			}},
			OverallSummary: "Strong, concrete answer.",
		},
	}

	sess := interview.GuidedSession{
		ID: "sess-1",
		Questions: interview.QuestionSet{
			Questions: []string{"Tell me about yourself.", "Describe a hard bug.", "Why this role?"},
			Source:    interview.SourceAdapted,
		},
		Index:     3,
		Results:   map[int]*interview.AnalysisResult{1: result},
		State:     interview.StateComplete,
		StartedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}

	report := &interview.SessionReport{
		SessionID:      "sess-1",
		Entries:        []interview.ReportEntry{{Index: 1, Question: "Describe a hard bug.", Result: result}},
		Unattempted:    []int{0, 2},
		OverallSummary: "Answered 1 of 3 questions.",
	}
	return sess, report
}

func TestRecord_ArchivesSessionAndAnswers(t *testing.T) {
	t.Parallel()

	archive := &histmock.Archive{}
	embedder := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, DimensionsValue: 3}
	rec := history.NewRecorder(archive, history.WithEmbedder(embedder))

	sess, report := completedSession()
	if err := rec.Record(context.Background(), sess, report, "user-7", "Backend engineer role"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(archive.SaveSessionCalls) != 1 {
		t.Fatalf("SaveSession called %d times, want 1", len(archive.SaveSessionCalls))
	}
	saved := archive.SaveSessionCalls[0].Rec
	if saved.ID != "sess-1" || saved.UserID != "user-7" {
		t.Errorf("session record = %+v, want ID sess-1 / user-7", saved)
	}
	if saved.Source != "adapted" {
		t.Errorf("Source = %q, want adapted", saved.Source)
	}
	if saved.QuestionCount != 3 || saved.AnsweredCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", saved.QuestionCount, saved.AnsweredCount)
	}
	if saved.OverallSummary != "Answered 1 of 3 questions." {
		t.Errorf("OverallSummary = %q", saved.OverallSummary)
	}

	if len(archive.SaveAnswerCalls) != 1 {
		t.Fatalf("SaveAnswer called %d times, want 1", len(archive.SaveAnswerCalls))
	}
	answer := archive.SaveAnswerCalls[0].Rec
	if answer.SessionID != "sess-1" || answer.QuestionIndex != 1 {
		t.Errorf("answer keyed %s/%d, want sess-1/1", answer.SessionID, answer.QuestionIndex)
	}
	if answer.Transcript != "I led the migration. It cut latency by half." {
		t.Errorf("Transcript = %q", answer.Transcript)
	}
	if answer.Score.FillerCount != 1 {
		t.Errorf("Score.FillerCount = %d, want 1", answer.Score.FillerCount)
	}
	if len(answer.Embedding) != 3 {
		t.Errorf("Embedding length = %d, want 3", len(answer.Embedding))
	}
	if len(embedder.EmbedCalls) != 1 || embedder.EmbedCalls[0].Text != answer.Transcript {
		t.Errorf("embedder saw %+v, want one call with the transcript", embedder.EmbedCalls)
	}
}

func TestRecord_EmbeddingFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	archive := &histmock.Archive{}
	embedder := &embmock.Provider{EmbedErr: errors.New("model offline")}
	rec := history.NewRecorder(archive, history.WithEmbedder(embedder))

	sess, report := completedSession()
	if err := rec.Record(context.Background(), sess, report, "", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(archive.SaveAnswerCalls) != 1 {
		t.Fatalf("SaveAnswer called %d times, want 1", len(archive.SaveAnswerCalls))
	}
	if archive.SaveAnswerCalls[0].Rec.Embedding != nil {
		t.Errorf("Embedding = %v, want nil after embed failure", archive.SaveAnswerCalls[0].Rec.Embedding)
	}
}

func TestRecord_NoEmbedderArchivesWithoutVectors(t *testing.T) {
	t.Parallel()

	archive := &histmock.Archive{}
	rec := history.NewRecorder(archive)

	sess, report := completedSession()
	if err := rec.Record(context.Background(), sess, report, "", ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if archive.SaveAnswerCalls[0].Rec.Embedding != nil {
		t.Errorf("Embedding set without an embedder")
	}
}

func TestRecord_SessionWriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	archive := &histmock.Archive{SaveSessionErr: errors.New("db down")}
	rec := history.NewRecorder(archive)

	sess, report := completedSession()
	if err := rec.Record(context.Background(), sess, report, "", ""); err == nil {
		t.Fatal("Record succeeded despite session write failure")
	}
	if len(archive.SaveAnswerCalls) != 0 {
		t.Errorf("answers written after failed session write")
	}
}

func TestRecord_NilReportRejected(t *testing.T) {
	t.Parallel()

	rec := history.NewRecorder(&histmock.Archive{})
	sess, _ := completedSession()
	if err := rec.Record(context.Background(), sess, nil, "", ""); err == nil {
		t.Fatal("Record accepted a nil report")
	}
}
