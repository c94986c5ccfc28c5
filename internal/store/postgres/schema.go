// Package postgres provides the PostgreSQL-backed [store.Store] implementation.
//
// All repositories share a single [pgxpool.Pool]. The pgvector extension must
// be available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS and creates all tables.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer st.Close()
//
//	err = st.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
//		return tx.Interviews().Update(ctx, iv)
//	})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — interviews and planned questions
// ─────────────────────────────────────────────────────────────────────────────

const ddlInterviews = `
CREATE TABLE IF NOT EXISTS interviews (
    id                 TEXT         PRIMARY KEY,
    candidate_id       TEXT         NOT NULL,
    version            BIGINT       NOT NULL DEFAULT 1,
    question_ids       TEXT[]       NOT NULL DEFAULT '{}',
    current_index      INT          NOT NULL DEFAULT 0,
    follow_up_ids      TEXT[]       NOT NULL DEFAULT '{}',
    current_parent_id  TEXT         NOT NULL DEFAULT '',
    followup_count     INT          NOT NULL DEFAULT 0,
    status             TEXT         NOT NULL,
    plan_metadata      JSONB        NOT NULL DEFAULT '{}',
    cv_analysis_id     TEXT         NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ  NOT NULL DEFAULT now(),
    started_at         TIMESTAMPTZ,
    completed_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_interviews_candidate_id
    ON interviews (candidate_id);

CREATE INDEX IF NOT EXISTS idx_interviews_status
    ON interviews (status);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — follow-ups and evaluations
// ─────────────────────────────────────────────────────────────────────────────

const ddlFollowUps = `
CREATE TABLE IF NOT EXISTS follow_up_questions (
    id                  TEXT         PRIMARY KEY,
    interview_id        TEXT         NOT NULL,
    parent_question_id  TEXT         NOT NULL,
    prompt              TEXT         NOT NULL,
    ordinal             INT          NOT NULL,
    reason              TEXT[]       NOT NULL DEFAULT '{}',
    seq                 BIGSERIAL,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_followups_interview
    ON follow_up_questions (interview_id);

CREATE INDEX IF NOT EXISTS idx_followups_parent
    ON follow_up_questions (interview_id, parent_question_id, ordinal);
`

const ddlEvaluations = `
CREATE TABLE IF NOT EXISTS evaluations (
    id            TEXT         PRIMARY KEY,
    answer_id     TEXT         NOT NULL,
    question_id   TEXT         NOT NULL,
    interview_id  TEXT         NOT NULL,
    raw_score     DOUBLE PRECISION NOT NULL,
    final_score   DOUBLE PRECISION NOT NULL,
    completeness  DOUBLE PRECISION NOT NULL DEFAULT 0,
    relevance     DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment     TEXT         NOT NULL DEFAULT '',
    reasoning     TEXT         NOT NULL DEFAULT '',
    strengths     TEXT[]       NOT NULL DEFAULT '{}',
    weaknesses    TEXT[]       NOT NULL DEFAULT '{}',
    voice         JSONB,
    seq           BIGSERIAL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_evaluations_interview
    ON evaluations (interview_id, seq);
`

// ddlVectorTables returns the DDL for the tables carrying embedding columns,
// with the vector dimension substituted. The dimension is baked into the
// column type at schema creation time.
func ddlVectorTables(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS questions (
    id               TEXT         PRIMARY KEY,
    prompt           TEXT         NOT NULL,
    ideal_answer     TEXT         NOT NULL DEFAULT '',
    difficulty       TEXT         NOT NULL DEFAULT '',
    skills           TEXT[]       NOT NULL DEFAULT '{}',
    rationale        TEXT         NOT NULL DEFAULT '',
    tts_ready        BOOLEAN      NOT NULL DEFAULT FALSE,
    ideal_embedding  vector(%d)
);

CREATE TABLE IF NOT EXISTS answers (
    id             TEXT         PRIMARY KEY,
    interview_id   TEXT         NOT NULL,
    question_id    TEXT         NOT NULL,
    transcript     TEXT         NOT NULL,
    voice          JSONB,
    similarity     DOUBLE PRECISION NOT NULL DEFAULT 0.01,
    gaps           JSONB        NOT NULL DEFAULT '{}',
    evaluation_id  TEXT         NOT NULL DEFAULT '',
    embedding      vector(%d),
    seq            BIGSERIAL,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (interview_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_answers_interview
    ON answers (interview_id, seq);

CREATE INDEX IF NOT EXISTS idx_answers_embedding
    ON answers USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every application start.
//
// embeddingDimensions must match the configured embedding model (e.g. 1536
// for OpenAI text-embedding-3-small, 768 for nomic-embed-text). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlInterviews,
		ddlVectorTables(embeddingDimensions),
		ddlFollowUps,
		ddlEvaluations,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
