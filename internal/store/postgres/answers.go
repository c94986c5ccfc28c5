package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
)

type answerRepo struct {
	q querier
}

const answerColumns = `id, interview_id, question_id, transcript, voice,
	similarity, gaps, evaluation_id, embedding, created_at`

// Upsert implements store.AnswerRepo. The (interview_id, question_id) unique
// constraint makes a re-answer replace the earlier row, id included.
func (r *answerRepo) Upsert(ctx context.Context, a *interview.Answer) error {
	voice, err := encodeVoice(a.Voice)
	if err != nil {
		return fmt.Errorf("postgres answers: encode voice: %w", err)
	}
	gaps, err := json.Marshal(a.Gaps)
	if err != nil {
		return fmt.Errorf("postgres answers: encode gaps: %w", err)
	}

	const q = `
		INSERT INTO answers (` + answerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (interview_id, question_id) DO UPDATE SET
		    id            = EXCLUDED.id,
		    transcript    = EXCLUDED.transcript,
		    voice         = EXCLUDED.voice,
		    similarity    = EXCLUDED.similarity,
		    gaps          = EXCLUDED.gaps,
		    evaluation_id = EXCLUDED.evaluation_id,
		    embedding     = EXCLUDED.embedding,
		    created_at    = EXCLUDED.created_at`

	_, err = r.q.Exec(ctx, q,
		a.ID, a.InterviewID, a.QuestionID, a.Transcript, voice,
		a.Similarity, gaps, a.EvaluationID, nullableVector(a.Embedding), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres answers: upsert: %w", err)
	}
	return nil
}

// GetByQuestion implements store.AnswerRepo.
func (r *answerRepo) GetByQuestion(ctx context.Context, interviewID, questionID string) (*interview.Answer, error) {
	const q = `
		SELECT ` + answerColumns + `
		FROM   answers
		WHERE  interview_id = $1 AND question_id = $2`

	row := r.q.QueryRow(ctx, q, interviewID, questionID)
	a, err := scanAnswerRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres answers: get by question: %w", err)
	}
	return a, nil
}

// ListByInterview implements store.AnswerRepo.
func (r *answerRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.Answer, error) {
	const q = `
		SELECT ` + answerColumns + `
		FROM   answers
		WHERE  interview_id = $1
		ORDER  BY seq`

	rows, err := r.q.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("postgres answers: list by interview: %w", err)
	}
	return collectAnswers(rows)
}

// FindSimilar implements store.AnswerRepo. Results are ordered by ascending
// cosine distance to embedding (most similar first), served by the HNSW index.
func (r *answerRepo) FindSimilar(ctx context.Context, interviewID string, embedding []float32, limit int) ([]*interview.Answer, error) {
	const q = `
		SELECT ` + answerColumns + `
		FROM   answers
		WHERE  interview_id = $2 AND embedding IS NOT NULL
		ORDER  BY embedding <=> $1
		LIMIT  $3`

	rows, err := r.q.Query(ctx, q, pgvector.NewVector(embedding), interviewID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres answers: find similar: %w", err)
	}
	return collectAnswers(rows)
}

func collectAnswers(rows pgx.Rows) ([]*interview.Answer, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*interview.Answer, error) {
		return scanAnswerRow(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres answers: scan rows: %w", err)
	}
	if out == nil {
		out = []*interview.Answer{}
	}
	return out, nil
}

// scanAnswerRow decodes one answers row through the given Scan function.
func scanAnswerRow(scan func(dest ...any) error) (*interview.Answer, error) {
	var (
		a     interview.Answer
		voice []byte
		gaps  []byte
		vec   *pgvector.Vector
	)
	if err := scan(
		&a.ID, &a.InterviewID, &a.QuestionID, &a.Transcript, &voice,
		&a.Similarity, &gaps, &a.EvaluationID, &vec, &a.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(voice) > 0 {
		a.Voice = &interview.VoiceMetrics{}
		if err := json.Unmarshal(voice, a.Voice); err != nil {
			return nil, fmt.Errorf("decode voice: %w", err)
		}
	}
	if len(gaps) > 0 {
		if err := json.Unmarshal(gaps, &a.Gaps); err != nil {
			return nil, fmt.Errorf("decode gaps: %w", err)
		}
	}
	if vec != nil {
		a.Embedding = vec.Slice()
	}
	return &a, nil
}

// encodeVoice marshals voice metrics to JSONB, preserving NULL for text answers.
func encodeVoice(v *interview.VoiceMetrics) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeVoice(data []byte, v *interview.VoiceMetrics) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode voice: %w", err)
	}
	return nil
}
