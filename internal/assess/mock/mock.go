// Package mock provides a scripted assess.Assessor for tests and mock mode.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/intervoxa/internal/assess"
)

var _ assess.Assessor = (*Assessor)(nil)

// Assessor is a scripted mock implementation of assess.Assessor.
// Evaluation results are consumed in order; all fields and methods are safe
// for concurrent use.
type Assessor struct {
	mu sync.Mutex

	// Evaluations are returned by EvaluateAnswer in call order; when exhausted
	// the last one repeats. When empty, a neutral passing result is returned.
	Evaluations []assess.EvaluationResult

	// EvaluateErr, when non-nil, fails every EvaluateAnswer call.
	EvaluateErr error

	// FollowUpText is returned by GenerateFollowUp; a default is used when empty.
	FollowUpText string

	// FollowUpErr, when non-nil, fails every GenerateFollowUp call.
	FollowUpErr error

	// Recs is returned by GenerateRecommendations.
	Recs assess.Recommendations

	// RecsErr, when non-nil, fails every GenerateRecommendations call.
	RecsErr error

	// Question is returned by GenerateQuestion.
	Question assess.GeneratedQuestion

	// Call records.
	EvaluateCalls []assess.EvaluateInput
	FollowUpCalls []assess.FollowUpInput
	RecsCalls     []assess.RecommendationsInput
	QuestionCalls []assess.QuestionInput
}

// EvaluateAnswer implements assess.Assessor.
func (a *Assessor) EvaluateAnswer(ctx context.Context, in assess.EvaluateInput) (*assess.EvaluationResult, error) {
	a.mu.Lock()
	a.EvaluateCalls = append(a.EvaluateCalls, in)
	n := len(a.EvaluateCalls)
	err := a.EvaluateErr
	var res assess.EvaluationResult
	switch {
	case len(a.Evaluations) == 0:
		res = assess.EvaluationResult{RawScore: 75, Completeness: 75, Relevance: 80,
			Sentiment: "neutral", Reasoning: "mock evaluation",
			Strengths: []string{}, Weaknesses: []string{}}
	case n-1 < len(a.Evaluations):
		res = a.Evaluations[n-1]
	default:
		res = a.Evaluations[len(a.Evaluations)-1]
	}
	a.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	out := res
	return &out, nil
}

// GenerateFollowUp implements assess.Assessor.
func (a *Assessor) GenerateFollowUp(ctx context.Context, in assess.FollowUpInput) (string, error) {
	a.mu.Lock()
	a.FollowUpCalls = append(a.FollowUpCalls, in)
	err := a.FollowUpErr
	text := a.FollowUpText
	a.mu.Unlock()

	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if text == "" {
		text = fmt.Sprintf("Can you explain %v in more depth?", in.MissingConcepts)
	}
	return text, nil
}

// GenerateRecommendations implements assess.Assessor.
func (a *Assessor) GenerateRecommendations(ctx context.Context, in assess.RecommendationsInput) (*assess.Recommendations, error) {
	a.mu.Lock()
	a.RecsCalls = append(a.RecsCalls, in)
	err := a.RecsErr
	recs := a.Recs
	a.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if recs.Strengths == nil {
		recs.Strengths = []string{}
	}
	if recs.Weaknesses == nil {
		recs.Weaknesses = []string{}
	}
	if recs.StudyTopics == nil {
		recs.StudyTopics = []string{}
	}
	if recs.TechniqueTips == nil {
		recs.TechniqueTips = []string{}
	}
	out := recs
	return &out, nil
}

// GenerateQuestion implements assess.Assessor.
func (a *Assessor) GenerateQuestion(ctx context.Context, in assess.QuestionInput) (*assess.GeneratedQuestion, error) {
	a.mu.Lock()
	a.QuestionCalls = append(a.QuestionCalls, in)
	q := a.Question
	a.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if q.Prompt == "" {
		q = assess.GeneratedQuestion{
			Prompt:      "Explain how a hash map handles collisions.",
			IdealAnswer: "Chaining or open addressing; discuss load factor and resizing.",
			Rationale:   "mock question",
		}
	}
	out := q
	return &out, nil
}
