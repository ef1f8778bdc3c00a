// Package history defines the archive for completed practice sessions.
//
// Guided sessions are ephemeral process state; the archive is what survives
// them: one [SessionRecord] per completed session and one [AnswerRecord] per
// answered question. Answer transcripts carry an optional embedding vector so
// a user can be shown how their latest answer compares with earlier attempts
// at similar questions ([Archive.SimilarAnswers]).
//
// The interface is public so external packages can supply alternative
// backends (Postgres/pgvector, in-memory, …). Every implementation must be
// safe for concurrent use.
package history

import (
	"context"
	"time"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// SessionRecord is the archived summary of one completed guided session.
type SessionRecord struct {
	// ID is the session's unique identifier (assigned at session start).
	ID string

	// UserID identifies who practised. For the Discord surface this is the
	// member's user ID; the HTTP surface may leave it empty.
	UserID string

	// Source records how the question set was assembled ("default", "adapted").
	Source string

	// JobDescription is the text the set was adapted to, if any.
	JobDescription string

	// QuestionCount is the size of the question set.
	QuestionCount int

	// AnsweredCount is how many questions hold a real answer.
	AnsweredCount int

	// OverallSummary is the session report's closing summary.
	OverallSummary string

	// StartedAt is when the session left Setup.
	StartedAt time.Time

	// CompletedAt is when the session reached Complete.
	CompletedAt time.Time
}

// AnswerRecord is one archived answer. The (SessionID, QuestionIndex) pair is
// the natural key: a retried question overwrites its slot here exactly as it
// does in the live session.
type AnswerRecord struct {
	// ID is a unique identifier for this answer row.
	ID string

	// SessionID is the owning session.
	SessionID string

	// QuestionIndex is the question's position in the session's set.
	QuestionIndex int

	// QuestionText is the prompt that was answered.
	QuestionText string

	// Transcript is the full recognised answer text.
	Transcript string

	// Score is the stored rubric score for the answer's first turn.
	Score interview.TurnScore

	// Embedding is the transcript's embedding vector. May be nil when no
	// embeddings provider is configured; such answers never appear in
	// similarity results.
	Embedding []float32

	// CreatedAt is when the answer was archived.
	CreatedAt time.Time
}

// AnswerMatch pairs a retrieved answer with its vector-space distance from
// the query embedding. Lower distance means higher similarity.
type AnswerMatch struct {
	Answer   AnswerRecord
	Distance float64
}

// Archive stores and retrieves practice history.
type Archive interface {
	// SaveSession upserts a session record.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// SaveAnswer upserts an answer record. An existing row with the same
	// (SessionID, QuestionIndex) is replaced.
	SaveAnswer(ctx context.Context, rec AnswerRecord) error

	// GetSession retrieves a session by ID. Returns (nil, nil) when the
	// session does not exist.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessions returns the most recent sessions for userID, newest first.
	// An empty userID lists across all users. limit 0 applies the
	// implementation default.
	ListSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error)

	// Answers returns the archived answers of one session in question order.
	// Returns an empty (non-nil) slice when the session has none.
	Answers(ctx context.Context, sessionID string) ([]AnswerRecord, error)

	// SimilarAnswers finds the topK archived answers whose embeddings are
	// closest to the query embedding, ordered by ascending distance.
	// excludeSessionID, when non-empty, removes the current session's own
	// answers from the results. Answers without embeddings never match.
	SimilarAnswers(ctx context.Context, embedding []float32, topK int, excludeSessionID string) ([]AnswerMatch, error)
}
