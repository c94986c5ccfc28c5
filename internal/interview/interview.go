// Package interview holds the interview aggregate and its associated value
// types: questions, answers, evaluations, voice metrics and the completion
// summary.
//
// The aggregate is the single source of truth for interview state. All status
// changes go through its transition methods, which validate against a fixed
// transition table and fail without side effects on any disallowed move. The
// session orchestrator is stateless and re-loads the aggregate every turn, so
// the transition function must stay total and free of hidden state.
package interview

import (
	"errors"
	"fmt"
	"time"
)

// MaxFollowupsPerQuestion is the hard domain limit on follow-ups per main
// question. It is an aggregate invariant, not a tunable: configuration may
// lower the effective cap but can never raise it past this value.
const MaxFollowupsPerQuestion = 3

// ErrMaxFollowups is returned by [Interview.AskFollowup] when the current
// parent question already has the maximum number of follow-ups.
var ErrMaxFollowups = errors.New("interview: max follow-ups reached for question")

// ErrEmptyPlan is returned by [Interview.Start] when the plan has no questions.
var ErrEmptyPlan = errors.New("interview: question plan is empty")

// TransitionError reports an attempted status transition outside the
// transition table. The aggregate is unchanged when it is returned.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("interview: invalid transition %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is (or wraps) a [TransitionError].
func IsInvalidTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// allowedTransitions is the authoritative transition table. A transition is
// legal iff allowedTransitions[from] contains to. COMPLETE and CANCELLED have
// no entries: they are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPlanning:    {StatusIdle, StatusCancelled},
	StatusIdle:        {StatusQuestioning, StatusCancelled},
	StatusQuestioning: {StatusEvaluating, StatusCancelled},
	StatusEvaluating:  {StatusQuestioning, StatusFollowUp, StatusComplete, StatusCancelled},
	StatusFollowUp:    {StatusEvaluating, StatusCancelled},
}

// CanTransition reports whether the from -> to move is in the transition table.
func CanTransition(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Interview is the aggregate root for one candidate interview. It owns the
// question plan cursor, the follow-up counters and the status.
//
// Interview is not safe for concurrent mutation; the orchestrator owning the
// session is its only writer, and persistence uses optimistic concurrency on
// Version to reject lost updates.
type Interview struct {
	ID          string
	CandidateID string

	// Version is the optimistic concurrency token, owned by the repository:
	// it is bumped on every successful update and compared on write.
	Version uint64

	// QuestionIDs is the ordered plan of main questions, frozen upstream.
	QuestionIDs []string

	// CurrentIndex is the index into QuestionIDs of the current main question.
	CurrentIndex int

	// FollowUpIDs lists every follow-up asked so far, in ask order.
	FollowUpIDs []string

	// CurrentParentID is the main question currently spawning follow-ups.
	// Empty whenever no follow-up sequence is in progress.
	CurrentParentID string

	// FollowupCount is the number of follow-ups asked under CurrentParentID,
	// in [0, MaxFollowupsPerQuestion].
	FollowupCount int

	Status Status

	// PlanMetadata is a free-form map shared with the upstream planner. The
	// completion engine writes the summary here under [MetaCompletionSummary].
	PlanMetadata map[string]any

	// CVAnalysisID links the interview to its CV analysis once planning is done.
	CVAnalysisID string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// New creates an interview in PLANNING with the given identity. The plan is
// attached later by the upstream planner before [Interview.MarkReady].
func New(id, candidateID string) *Interview {
	now := time.Now().UTC()
	return &Interview{
		ID:           id,
		CandidateID:  candidateID,
		Status:       StatusPlanning,
		PlanMetadata: map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// transition moves the aggregate to target or fails with a [TransitionError],
// leaving the aggregate untouched on failure.
func (iv *Interview) transition(target Status) error {
	if !CanTransition(iv.Status, target) {
		return &TransitionError{From: iv.Status, To: target}
	}
	iv.Status = target
	iv.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkReady records the finished CV analysis and moves PLANNING -> IDLE.
func (iv *Interview) MarkReady(cvAnalysisID string) error {
	if err := iv.transition(StatusIdle); err != nil {
		return err
	}
	iv.CVAnalysisID = cvAnalysisID
	return nil
}

// Start begins the interview: IDLE -> QUESTIONING. The plan must be non-empty.
func (iv *Interview) Start() error {
	if len(iv.QuestionIDs) == 0 {
		return ErrEmptyPlan
	}
	if err := iv.transition(StatusQuestioning); err != nil {
		return err
	}
	now := time.Now().UTC()
	iv.StartedAt = &now
	return nil
}

// BeginEvaluation records that an answer has arrived for the pending main or
// follow-up question: QUESTIONING|FOLLOW_UP -> EVALUATING.
func (iv *Interview) BeginEvaluation() error {
	return iv.transition(StatusEvaluating)
}

// AskFollowup registers a newly generated follow-up under parentQuestionID and
// moves EVALUATING -> FOLLOW_UP.
//
// When the parent changes, the per-parent counter restarts at 1. When the
// parent is unchanged and the counter is already at the cap, AskFollowup fails
// with [ErrMaxFollowups] and leaves the aggregate unchanged.
func (iv *Interview) AskFollowup(followupID, parentQuestionID string) error {
	if iv.Status != StatusEvaluating {
		return &TransitionError{From: iv.Status, To: StatusFollowUp}
	}
	if iv.CurrentParentID == parentQuestionID && iv.FollowupCount >= MaxFollowupsPerQuestion {
		return ErrMaxFollowups
	}

	if iv.CurrentParentID != parentQuestionID {
		iv.CurrentParentID = parentQuestionID
		iv.FollowupCount = 1
	} else {
		iv.FollowupCount++
	}
	iv.FollowUpIDs = append(iv.FollowUpIDs, followupID)

	// Cannot fail: EVALUATING -> FOLLOW_UP is always legal.
	return iv.transition(StatusFollowUp)
}

// AnswerFollowup records that the candidate answered the pending follow-up:
// FOLLOW_UP -> EVALUATING.
func (iv *Interview) AnswerFollowup() error {
	return iv.transition(StatusEvaluating)
}

// ProceedToNextQuestion closes the current main question: the follow-up
// sequence is reset and the plan cursor advances. With questions remaining it
// moves EVALUATING -> QUESTIONING; on plan exhaustion it moves EVALUATING ->
// COMPLETE and stamps CompletedAt.
func (iv *Interview) ProceedToNextQuestion() error {
	if iv.Status != StatusEvaluating {
		return &TransitionError{From: iv.Status, To: StatusQuestioning}
	}

	target := StatusQuestioning
	if iv.CurrentIndex+1 >= len(iv.QuestionIDs) {
		target = StatusComplete
	}
	if err := iv.transition(target); err != nil {
		return err
	}

	iv.CurrentParentID = ""
	iv.FollowupCount = 0
	iv.CurrentIndex++
	if target == StatusComplete {
		now := time.Now().UTC()
		iv.CompletedAt = &now
	}
	return nil
}

// Cancel terminates the interview from any non-terminal state.
func (iv *Interview) Cancel() error {
	return iv.transition(StatusCancelled)
}

// CurrentMainQuestionID returns the id of the current main question, or ""
// when the plan is exhausted or empty.
func (iv *Interview) CurrentMainQuestionID() string {
	if iv.CurrentIndex < 0 || iv.CurrentIndex >= len(iv.QuestionIDs) {
		return ""
	}
	return iv.QuestionIDs[iv.CurrentIndex]
}

// HasMoreQuestions reports whether the plan cursor still points at a question.
func (iv *Interview) HasMoreQuestions() bool {
	return iv.CurrentIndex < len(iv.QuestionIDs)
}

// CanAskMoreFollowups reports whether the current parent is below the
// per-question follow-up cap.
func (iv *Interview) CanAskMoreFollowups() bool {
	return iv.FollowupCount < MaxFollowupsPerQuestion
}

// Summary returns the stored completion summary, or nil when absent.
// A COMPLETE interview without a summary indicates a corrupted completion.
func (iv *Interview) Summary() *CompletionSummary {
	s, ok := iv.PlanMetadata[MetaCompletionSummary]
	if !ok {
		return nil
	}
	cs, ok := s.(*CompletionSummary)
	if !ok {
		return nil
	}
	return cs
}

// SetSummary stores the completion summary in the plan metadata.
func (iv *Interview) SetSummary(s *CompletionSummary) {
	if iv.PlanMetadata == nil {
		iv.PlanMetadata = map[string]any{}
	}
	iv.PlanMetadata[MetaCompletionSummary] = s
}

// Clone returns a deep copy of the aggregate. Repositories hand out clones so
// that callers can never mutate stored state without going through an update.
func (iv *Interview) Clone() *Interview {
	cp := *iv
	cp.QuestionIDs = append([]string(nil), iv.QuestionIDs...)
	cp.FollowUpIDs = append([]string(nil), iv.FollowUpIDs...)
	cp.PlanMetadata = make(map[string]any, len(iv.PlanMetadata))
	for k, v := range iv.PlanMetadata {
		cp.PlanMetadata[k] = v
	}
	if iv.StartedAt != nil {
		t := *iv.StartedAt
		cp.StartedAt = &t
	}
	if iv.CompletedAt != nil {
		t := *iv.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
