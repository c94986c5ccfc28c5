package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
)

type questionRepo struct {
	q querier
}

// Put implements store.QuestionRepo.
func (r *questionRepo) Put(ctx context.Context, question *interview.Question) error {
	const q = `
		INSERT INTO questions
		    (id, prompt, ideal_answer, difficulty, skills, rationale, tts_ready, ideal_embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
		    prompt          = EXCLUDED.prompt,
		    ideal_answer    = EXCLUDED.ideal_answer,
		    difficulty      = EXCLUDED.difficulty,
		    skills          = EXCLUDED.skills,
		    rationale       = EXCLUDED.rationale,
		    tts_ready       = EXCLUDED.tts_ready,
		    ideal_embedding = EXCLUDED.ideal_embedding`

	_, err := r.q.Exec(ctx, q,
		question.ID, question.Prompt, question.IdealAnswer, question.Difficulty,
		question.Skills, question.Rationale, question.TTSReady,
		nullableVector(question.IdealEmbedding),
	)
	if err != nil {
		return fmt.Errorf("postgres questions: put: %w", err)
	}
	return nil
}

// Get implements store.QuestionRepo.
func (r *questionRepo) Get(ctx context.Context, id string) (*interview.Question, error) {
	const q = `
		SELECT id, prompt, ideal_answer, difficulty, skills, rationale, tts_ready, ideal_embedding
		FROM   questions
		WHERE  id = $1`

	var (
		question interview.Question
		vec      *pgvector.Vector
	)
	err := r.q.QueryRow(ctx, q, id).Scan(
		&question.ID, &question.Prompt, &question.IdealAnswer, &question.Difficulty,
		&question.Skills, &question.Rationale, &question.TTSReady, &vec,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres questions: get: %w", err)
	}
	if vec != nil {
		question.IdealEmbedding = vec.Slice()
	}
	return &question, nil
}

type followupRepo struct {
	q querier
}

// Create implements store.FollowUpRepo.
func (r *followupRepo) Create(ctx context.Context, f *interview.FollowUpQuestion) error {
	const q = `
		INSERT INTO follow_up_questions
		    (id, interview_id, parent_question_id, prompt, ordinal, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.Exec(ctx, q,
		f.ID, f.InterviewID, f.ParentQuestionID, f.Prompt, f.Ordinal, f.Reason, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres follow-ups: create: %w", err)
	}
	return nil
}

// Get implements store.FollowUpRepo.
func (r *followupRepo) Get(ctx context.Context, id string) (*interview.FollowUpQuestion, error) {
	const q = `
		SELECT id, interview_id, parent_question_id, prompt, ordinal, reason, created_at
		FROM   follow_up_questions
		WHERE  id = $1`

	var f interview.FollowUpQuestion
	err := r.q.QueryRow(ctx, q, id).Scan(
		&f.ID, &f.InterviewID, &f.ParentQuestionID, &f.Prompt, &f.Ordinal, &f.Reason, &f.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres follow-ups: get: %w", err)
	}
	return &f, nil
}

// ListByParent implements store.FollowUpRepo.
func (r *followupRepo) ListByParent(ctx context.Context, interviewID, parentQuestionID string) ([]*interview.FollowUpQuestion, error) {
	const q = `
		SELECT id, interview_id, parent_question_id, prompt, ordinal, reason, created_at
		FROM   follow_up_questions
		WHERE  interview_id = $1 AND parent_question_id = $2
		ORDER  BY ordinal`

	rows, err := r.q.Query(ctx, q, interviewID, parentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("postgres follow-ups: list by parent: %w", err)
	}
	return collectFollowUps(rows)
}

// ListByInterview implements store.FollowUpRepo.
func (r *followupRepo) ListByInterview(ctx context.Context, interviewID string) ([]*interview.FollowUpQuestion, error) {
	const q = `
		SELECT id, interview_id, parent_question_id, prompt, ordinal, reason, created_at
		FROM   follow_up_questions
		WHERE  interview_id = $1
		ORDER  BY seq`

	rows, err := r.q.Query(ctx, q, interviewID)
	if err != nil {
		return nil, fmt.Errorf("postgres follow-ups: list by interview: %w", err)
	}
	return collectFollowUps(rows)
}

func collectFollowUps(rows pgx.Rows) ([]*interview.FollowUpQuestion, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*interview.FollowUpQuestion, error) {
		var f interview.FollowUpQuestion
		err := row.Scan(&f.ID, &f.InterviewID, &f.ParentQuestionID, &f.Prompt, &f.Ordinal, &f.Reason, &f.CreatedAt)
		return &f, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres follow-ups: scan rows: %w", err)
	}
	if out == nil {
		out = []*interview.FollowUpQuestion{}
	}
	return out, nil
}

// nullableVector converts a possibly empty embedding to its column value.
func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}
