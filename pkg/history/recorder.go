package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/embeddings"
)

// Recorder archives completed guided sessions. It translates a session
// snapshot plus its report into [SessionRecord] and [AnswerRecord] rows and,
// when an embeddings provider is configured, embeds each answer transcript so
// it can later be found via [Archive.SimilarAnswers].
type Recorder struct {
	archive  Archive
	embedder embeddings.Provider
	log      *slog.Logger
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithEmbedder configures transcript embedding. Without it answers are
// archived with a nil embedding and never appear in similarity results.
func WithEmbedder(e embeddings.Provider) RecorderOption {
	return func(r *Recorder) { r.embedder = e }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = log }
}

// NewRecorder creates a Recorder writing to archive.
func NewRecorder(archive Archive, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		archive: archive,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record archives one completed session. userID and jobDescription are
// surface-supplied metadata; pass empty strings when unknown.
//
// Embedding failures are not fatal: the affected answers are archived without
// a vector and the error is logged. A failed session or answer write is fatal
// and returned.
func (r *Recorder) Record(ctx context.Context, sess interview.GuidedSession, report *interview.SessionReport, userID, jobDescription string) error {
	if report == nil {
		return fmt.Errorf("record session %s: nil report", sess.ID)
	}

	now := time.Now().UTC()
	err := r.archive.SaveSession(ctx, SessionRecord{
		ID:             sess.ID,
		UserID:         userID,
		Source:         string(sess.Questions.Source),
		JobDescription: jobDescription,
		QuestionCount:  sess.Questions.Len(),
		AnsweredCount:  len(report.Entries),
		OverallSummary: report.OverallSummary,
		StartedAt:      sess.StartedAt,
		CompletedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("record session %s: %w", sess.ID, err)
	}

	for _, entry := range report.Entries {
		rec := AnswerRecord{
			ID:            uuid.NewString(),
			SessionID:     sess.ID,
			QuestionIndex: entry.Index,
			QuestionText:  entry.Question,
			CreatedAt:     now,
		}
		if entry.Result != nil {
			rec.Transcript = transcriptOf(entry.Result.Segments)
			if len(entry.Result.Scores.Turns) > 0 {
				rec.Score = entry.Result.Scores.Turns[0]
			}
		}
		rec.Embedding = r.embed(ctx, sess.ID, entry.Index, rec.Transcript)

		if err := r.archive.SaveAnswer(ctx, rec); err != nil {
			return fmt.Errorf("record answer %d of session %s: %w", entry.Index, sess.ID, err)
		}
	}
	return nil
}

func (r *Recorder) embed(ctx context.Context, sessionID string, index int, transcript string) []float32 {
	if r.embedder == nil || transcript == "" {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, transcript)
	if err != nil {
		r.log.Warn("answer embedding failed, archiving without vector",
			"session_id", sessionID,
			"question_index", index,
			"error", err)
		return nil
	}
	return vec
}

func transcriptOf(segments []interview.Segment) string {
	return interview.Turn{Segments: segments}.Text()
}
