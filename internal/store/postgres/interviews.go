package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/store"
)

type interviewRepo struct {
	q querier
}

const interviewColumns = `id, candidate_id, version, question_ids, current_index,
	follow_up_ids, current_parent_id, followup_count, status, plan_metadata,
	cv_analysis_id, created_at, updated_at, started_at, completed_at`

// Create implements store.InterviewRepo.
func (r *interviewRepo) Create(ctx context.Context, iv *interview.Interview) error {
	meta, err := encodePlanMetadata(iv.PlanMetadata)
	if err != nil {
		return fmt.Errorf("postgres interviews: encode metadata: %w", err)
	}

	iv.Version = 1
	const q = `
		INSERT INTO interviews (` + interviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.q.Exec(ctx, q,
		iv.ID, iv.CandidateID, iv.Version, iv.QuestionIDs, iv.CurrentIndex,
		iv.FollowUpIDs, iv.CurrentParentID, iv.FollowupCount, string(iv.Status), meta,
		iv.CVAnalysisID, iv.CreatedAt, iv.UpdatedAt, iv.StartedAt, iv.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres interviews: create: %w", err)
	}
	return nil
}

// Get implements store.InterviewRepo.
func (r *interviewRepo) Get(ctx context.Context, id string) (*interview.Interview, error) {
	const q = `SELECT ` + interviewColumns + ` FROM interviews WHERE id = $1`

	var (
		iv     interview.Interview
		status string
		meta   []byte
	)
	err := r.q.QueryRow(ctx, q, id).Scan(
		&iv.ID, &iv.CandidateID, &iv.Version, &iv.QuestionIDs, &iv.CurrentIndex,
		&iv.FollowUpIDs, &iv.CurrentParentID, &iv.FollowupCount, &status, &meta,
		&iv.CVAnalysisID, &iv.CreatedAt, &iv.UpdatedAt, &iv.StartedAt, &iv.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres interviews: get: %w", err)
	}

	iv.Status = interview.Status(status)
	iv.PlanMetadata, err = decodePlanMetadata(meta)
	if err != nil {
		return nil, fmt.Errorf("postgres interviews: decode metadata: %w", err)
	}
	return &iv, nil
}

// Update implements store.InterviewRepo. The WHERE clause carries the loaded
// version; zero affected rows means either a stale token or a missing row.
func (r *interviewRepo) Update(ctx context.Context, iv *interview.Interview) error {
	meta, err := encodePlanMetadata(iv.PlanMetadata)
	if err != nil {
		return fmt.Errorf("postgres interviews: encode metadata: %w", err)
	}

	const q = `
		UPDATE interviews SET
			version = version + 1,
			question_ids = $3, current_index = $4, follow_up_ids = $5,
			current_parent_id = $6, followup_count = $7, status = $8,
			plan_metadata = $9, cv_analysis_id = $10, updated_at = $11,
			started_at = $12, completed_at = $13
		WHERE id = $1 AND version = $2`
	tag, err := r.q.Exec(ctx, q,
		iv.ID, iv.Version,
		iv.QuestionIDs, iv.CurrentIndex, iv.FollowUpIDs,
		iv.CurrentParentID, iv.FollowupCount, string(iv.Status),
		meta, iv.CVAnalysisID, iv.UpdatedAt,
		iv.StartedAt, iv.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres interviews: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM interviews WHERE id = $1)`, iv.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres interviews: stale check: %w", err)
		}
		if exists {
			return store.ErrStaleAggregate
		}
		return store.ErrNotFound
	}

	iv.Version++
	return nil
}

// encodePlanMetadata marshals the metadata map to JSONB. The completion
// summary pointer marshals through its JSON tags.
func encodePlanMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// decodePlanMetadata unmarshals JSONB metadata, restoring the completion
// summary to its typed form so that [interview.Interview.Summary] works on
// loaded aggregates.
func decodePlanMetadata(data []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(data) == 0 {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		if k == interview.MetaCompletionSummary {
			var cs interview.CompletionSummary
			if err := json.Unmarshal(v, &cs); err != nil {
				return nil, fmt.Errorf("completion summary: %w", err)
			}
			out[k] = &cs
			continue
		}
		var generic any
		if err := json.Unmarshal(v, &generic); err != nil {
			return nil, err
		}
		out[k] = generic
	}
	return out, nil
}
