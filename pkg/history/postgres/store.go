package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

// Compile-time interface check.
var _ history.Archive = (*Store)(nil)

// defaultListLimit bounds ListSessions when the caller passes limit <= 0.
const defaultListLimit = 20

// Store is the PostgreSQL-backed practice-history archive. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [history.AnswerRecord.Embedding] values.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that the embedding
	// column can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveSession implements [history.Archive]. An existing session with the same
// ID is completely replaced.
func (s *Store) SaveSession(ctx context.Context, rec history.SessionRecord) error {
	const q = `
		INSERT INTO practice_sessions
		    (id, user_id, source, job_description, question_count, answered_count,
		     overall_summary, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    user_id          = EXCLUDED.user_id,
		    source           = EXCLUDED.source,
		    job_description  = EXCLUDED.job_description,
		    question_count   = EXCLUDED.question_count,
		    answered_count   = EXCLUDED.answered_count,
		    overall_summary  = EXCLUDED.overall_summary,
		    started_at       = EXCLUDED.started_at,
		    completed_at     = EXCLUDED.completed_at`

	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.UserID,
		rec.Source,
		rec.JobDescription,
		rec.QuestionCount,
		rec.AnsweredCount,
		rec.OverallSummary,
		rec.StartedAt,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("history store: save session: %w", err)
	}
	return nil
}

// SaveAnswer implements [history.Archive]. The (session_id, question_index)
// key means a retried answer overwrites its earlier take.
func (s *Store) SaveAnswer(ctx context.Context, rec history.AnswerRecord) error {
	scoreJSON, err := json.Marshal(rec.Score)
	if err != nil {
		return fmt.Errorf("history store: marshal score: %w", err)
	}

	var embedding any
	if rec.Embedding != nil {
		embedding = pgvector.NewVector(rec.Embedding)
	}

	const q = `
		INSERT INTO answers
		    (id, session_id, question_index, question_text, transcript, score,
		     embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id, question_index) DO UPDATE SET
		    id             = EXCLUDED.id,
		    question_text  = EXCLUDED.question_text,
		    transcript     = EXCLUDED.transcript,
		    score          = EXCLUDED.score,
		    embedding      = EXCLUDED.embedding,
		    created_at     = EXCLUDED.created_at`

	_, err = s.pool.Exec(ctx, q,
		rec.ID,
		rec.SessionID,
		rec.QuestionIndex,
		rec.QuestionText,
		rec.Transcript,
		scoreJSON,
		embedding,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history store: save answer: %w", err)
	}
	return nil
}

// GetSession implements [history.Archive]. Returns (nil, nil) when no session
// with the given ID exists.
func (s *Store) GetSession(ctx context.Context, id string) (*history.SessionRecord, error) {
	const q = `
		SELECT id, user_id, source, job_description, question_count, answered_count,
		       overall_summary, started_at, completed_at
		FROM   practice_sessions
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("history store: get session: %w", err)
	}

	rec, err := pgx.CollectOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history store: scan session: %w", err)
	}
	return &rec, nil
}

// ListSessions implements [history.Archive].
func (s *Store) ListSessions(ctx context.Context, userID string, limit int) ([]history.SessionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	whereClause := ""
	if userID != "" {
		whereClause = "WHERE user_id = " + next(userID)
	}
	limitArg := next(limit)

	q := fmt.Sprintf(`
		SELECT id, user_id, source, job_description, question_count, answered_count,
		       overall_summary, started_at, completed_at
		FROM   practice_sessions
		%s
		ORDER  BY completed_at DESC
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list sessions: %w", err)
	}

	recs, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("history store: scan sessions: %w", err)
	}
	if recs == nil {
		recs = []history.SessionRecord{}
	}
	return recs, nil
}

// Answers implements [history.Archive].
func (s *Store) Answers(ctx context.Context, sessionID string) ([]history.AnswerRecord, error) {
	const q = `
		SELECT id, session_id, question_index, question_text, transcript, score,
		       embedding, created_at
		FROM   answers
		WHERE  session_id = $1
		ORDER  BY question_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history store: answers: %w", err)
	}

	recs, err := pgx.CollectRows(rows, scanAnswer)
	if err != nil {
		return nil, fmt.Errorf("history store: scan answers: %w", err)
	}
	if recs == nil {
		recs = []history.AnswerRecord{}
	}
	return recs, nil
}

// SimilarAnswers implements [history.Archive]. It finds the topK archived
// answers whose embeddings are closest (cosine distance) to the supplied
// query embedding, ordered by ascending distance.
func (s *Store) SimilarAnswers(ctx context.Context, embedding []float32, topK int, excludeSessionID string) ([]history.AnswerMatch, error) {
	queryVec := pgvector.NewVector(embedding)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	if excludeSessionID != "" {
		conditions = append(conditions, "session_id <> "+next(excludeSessionID))
	}
	whereClause := "WHERE " + strings.Join(conditions, "\n  AND ")

	limitArg := next(topK)

	q := fmt.Sprintf(`
		SELECT id, session_id, question_index, question_text, transcript, score,
		       embedding, created_at,
		       embedding <=> $1 AS distance
		FROM   answers
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: similar answers: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.AnswerMatch, error) {
		var (
			m         history.AnswerMatch
			scoreJSON []byte
			vec       *pgvector.Vector
		)
		if err := row.Scan(
			&m.Answer.ID,
			&m.Answer.SessionID,
			&m.Answer.QuestionIndex,
			&m.Answer.QuestionText,
			&m.Answer.Transcript,
			&scoreJSON,
			&vec,
			&m.Answer.CreatedAt,
			&m.Distance,
		); err != nil {
			return history.AnswerMatch{}, err
		}
		if err := unmarshalScore(scoreJSON, &m.Answer.Score); err != nil {
			return history.AnswerMatch{}, err
		}
		if vec != nil {
			m.Answer.Embedding = vec.Slice()
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan matches: %w", err)
	}
	if matches == nil {
		matches = []history.AnswerMatch{}
	}
	return matches, nil
}

func scanSession(row pgx.CollectableRow) (history.SessionRecord, error) {
	var rec history.SessionRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Source,
		&rec.JobDescription,
		&rec.QuestionCount,
		&rec.AnsweredCount,
		&rec.OverallSummary,
		&rec.StartedAt,
		&rec.CompletedAt,
	)
	return rec, err
}

func scanAnswer(row pgx.CollectableRow) (history.AnswerRecord, error) {
	var (
		rec       history.AnswerRecord
		scoreJSON []byte
		vec       *pgvector.Vector
	)
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.QuestionIndex,
		&rec.QuestionText,
		&rec.Transcript,
		&scoreJSON,
		&vec,
		&rec.CreatedAt,
	); err != nil {
		return history.AnswerRecord{}, err
	}
	if err := unmarshalScore(scoreJSON, &rec.Score); err != nil {
		return history.AnswerRecord{}, err
	}
	if vec != nil {
		rec.Embedding = vec.Slice()
	}
	return rec, nil
}

func unmarshalScore(data []byte, score *interview.TurnScore) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, score); err != nil {
		return fmt.Errorf("unmarshal score: %w", err)
	}
	return nil
}
