// Package postgres provides a PostgreSQL-backed implementation of the
// practice-history archive ([history.Archive]).
//
// Sessions and answers live in two tables sharing a single [pgxpool.Pool].
// Answer embeddings use the pgvector extension; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 768)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveSession(ctx, rec)
//	matches, _ := store.SimilarAnswers(ctx, embedding, 5, currentSessionID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id               TEXT         PRIMARY KEY,
    user_id          TEXT         NOT NULL DEFAULT '',
    source           TEXT         NOT NULL DEFAULT 'default',
    job_description  TEXT         NOT NULL DEFAULT '',
    question_count   INTEGER      NOT NULL DEFAULT 0,
    answered_count   INTEGER      NOT NULL DEFAULT 0,
    overall_summary  TEXT         NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_practice_sessions_user
    ON practice_sessions (user_id, completed_at DESC);
`

// ddlAnswers returns the answers DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
//
// The (session_id, question_index) primary key makes retries overwrite their
// slot instead of accumulating rows, matching how a live session stores
// results.
func ddlAnswers(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS answers (
    id              TEXT         NOT NULL,
    session_id      TEXT         NOT NULL REFERENCES practice_sessions (id) ON DELETE CASCADE,
    question_index  INTEGER      NOT NULL,
    question_text   TEXT         NOT NULL,
    transcript      TEXT         NOT NULL DEFAULT '',
    score           JSONB        NOT NULL DEFAULT '{}',
    embedding       vector(%d),
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, question_index)
);

CREATE INDEX IF NOT EXISTS idx_answers_session
    ON answers (session_id, question_index);

CREATE INDEX IF NOT EXISTS idx_answers_embedding
    ON answers USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for your
// deployment (e.g., 768 for nomic-embed-text, 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlAnswers(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("history migrate: %w", err)
		}
	}
	return nil
}
