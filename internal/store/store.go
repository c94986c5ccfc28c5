// Package store defines the persistence ports of the interview system: one
// repository per persisted type plus a transactional boundary. Two
// implementations exist, internal/store/postgres for production and
// internal/store/memstore for tests and single-process runs.
//
// Repositories hand out copies. Mutating a returned aggregate never changes
// stored state until it is written back, and interview writes are guarded by
// an optimistic version token.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/intervoxa/internal/interview"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStaleAggregate is returned by [InterviewRepo.Update] when the stored
// version no longer matches the version the caller loaded. The caller must
// re-load and re-apply its change.
var ErrStaleAggregate = errors.New("store: stale aggregate version")

// InterviewRepo persists the interview aggregate.
type InterviewRepo interface {
	// Create stores a new interview. The aggregate's Version is initialised.
	Create(ctx context.Context, iv *interview.Interview) error

	// Get loads an interview by id, or [ErrNotFound].
	Get(ctx context.Context, id string) (*interview.Interview, error)

	// Update writes the aggregate back. It fails with [ErrStaleAggregate] when
	// iv.Version does not match the stored version; on success iv.Version is
	// bumped to the newly stored value.
	Update(ctx context.Context, iv *interview.Interview) error
}

// QuestionRepo persists planned main questions. Questions are written during
// plan ingestion and read-only afterwards.
type QuestionRepo interface {
	// Put stores or replaces a planned question.
	Put(ctx context.Context, q *interview.Question) error

	// Get loads a question by id, or [ErrNotFound].
	Get(ctx context.Context, id string) (*interview.Question, error)
}

// FollowUpRepo persists generated follow-up questions.
type FollowUpRepo interface {
	// Create stores a new follow-up question.
	Create(ctx context.Context, f *interview.FollowUpQuestion) error

	// Get loads a follow-up by id, or [ErrNotFound].
	Get(ctx context.Context, id string) (*interview.FollowUpQuestion, error)

	// ListByParent returns the follow-ups under one parent question of one
	// interview, ordered by ordinal.
	ListByParent(ctx context.Context, interviewID, parentQuestionID string) ([]*interview.FollowUpQuestion, error)

	// ListByInterview returns every follow-up of an interview in ask order.
	ListByInterview(ctx context.Context, interviewID string) ([]*interview.FollowUpQuestion, error)
}

// AnswerRepo persists candidate answers. One answer per (interview, question)
// pair: a re-answer replaces the earlier one.
type AnswerRepo interface {
	// Upsert stores a, replacing any earlier answer to the same question in
	// the same interview.
	Upsert(ctx context.Context, a *interview.Answer) error

	// GetByQuestion loads the answer to questionID within interviewID, or
	// [ErrNotFound].
	GetByQuestion(ctx context.Context, interviewID, questionID string) (*interview.Answer, error)

	// ListByInterview returns every answer of an interview, oldest first.
	ListByInterview(ctx context.Context, interviewID string) ([]*interview.Answer, error)

	// FindSimilar returns up to limit answers of the interview closest to
	// embedding by cosine distance, most similar first. Answers without an
	// embedding are excluded.
	FindSimilar(ctx context.Context, interviewID string, embedding []float32, limit int) ([]*interview.Answer, error)
}

// EvaluationRepo persists the immutable evaluation records. A record is
// replaced only when its answer is re-submitted: the superseding write
// deletes the old evaluation in the same transaction.
type EvaluationRepo interface {
	// Create stores a new evaluation.
	Create(ctx context.Context, e *interview.Evaluation) error

	// Get loads an evaluation by id, or [ErrNotFound].
	Get(ctx context.Context, id string) (*interview.Evaluation, error)

	// Delete removes an evaluation. Deleting an absent id is a no-op so a
	// retried turn can always clear its predecessor.
	Delete(ctx context.Context, id string) error

	// ListByInterview returns every evaluation of an interview, oldest first.
	ListByInterview(ctx context.Context, interviewID string) ([]*interview.Evaluation, error)
}

// Store bundles the repositories with a transaction boundary.
type Store interface {
	Interviews() InterviewRepo
	Questions() QuestionRepo
	FollowUps() FollowUpRepo
	Answers() AnswerRepo
	Evaluations() EvaluationRepo

	// WithinTx runs fn against a transactional view of the store. Every write
	// fn performs through tx commits together when fn returns nil and rolls
	// back together when fn returns an error or panics. Nested transactions
	// are not supported.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
