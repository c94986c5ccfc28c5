package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
)

type evaluationRepo struct {
	q querier
}

const evaluationColumns = `id, answer_id, question_id, interview_id, raw_score,
	final_score, completeness, relevance, sentiment, reasoning, strengths,
	weaknesses, voice, created_at`

// Create implements store.EvaluationRepo.
func (r *evaluationRepo) Create(ctx context.Context, e *interview.Evaluation) error {
	voice, err := encodeVoice(e.Voice)
	if err != nil {
		return fmt.Errorf("postgres evaluations: encode voice: %w", err)
	}

	const q = `
		INSERT INTO evaluations (` + evaluationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = r.q.Exec(ctx, q,
		e.ID, e.AnswerID, e.QuestionID, e.InterviewID, e.RawScore,
		e.FinalScore, e.Completeness, e.Relevance, e.Sentiment, e.Reasoning,
		e.Strengths, e.Weaknesses, voice, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres evaluations: create: %w", err)
	}
	return nil
}

// Get implements store.EvaluationRepo.
func (r *evaluationRepo) Get(ctx context.Context, id string) (*interview.Evaluation, error) {
	const q = `SELECT ` + evaluationColumns + ` FROM evaluations WHERE id = $1`

	row := r.q.QueryRow(ctx, q, id)
	e, err := scanEvaluationRow(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres evaluations: get: %w", err)
	}
	return e, nil
}

// Delete implements store.EvaluationRepo. Deleting an absent id is a no-op.
func (r *evaluationRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM evaluations WHERE id = $1`
	if _, err := r.q.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("postgres evaluations: delete: %w", err)
	}
	return nil
}

// ListByInterview implements store.EvaluationRepo.
func (r *evaluationRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.Evaluation, error) {
	const q = `
		SELECT ` + evaluationColumns + `
		FROM   evaluations
		WHERE  interview_id = $1
		ORDER  BY seq`

	rows, err := r.q.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("postgres evaluations: list by interview: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*interview.Evaluation, error) {
		return scanEvaluationRow(row.Scan)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres evaluations: scan rows: %w", err)
	}
	if out == nil {
		out = []*interview.Evaluation{}
	}
	return out, nil
}

func scanEvaluationRow(scan func(dest ...any) error) (*interview.Evaluation, error) {
	var (
		e     interview.Evaluation
		voice []byte
	)
	if err := scan(
		&e.ID, &e.AnswerID, &e.QuestionID, &e.InterviewID, &e.RawScore,
		&e.FinalScore, &e.Completeness, &e.Relevance, &e.Sentiment, &e.Reasoning,
		&e.Strengths, &e.Weaknesses, &voice, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(voice) > 0 {
		e.Voice = &interview.VoiceMetrics{}
		if err := decodeVoice(voice, e.Voice); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
