// Package assess is the semantic assessment layer: it owns every prompt sent
// to the LLM and every response schema parsed back. The rest of the system
// talks to the [Assessor] interface and never sees raw model output.
//
// The LLM-backed implementation constrains responses to JSON (ForceJSON where
// the backend supports it) and tolerates the usual model quirks: code fences
// around the object, prose before it, missing optional keys.
package assess

import (
	"context"

	"github.com/MrWong99/intervoxa/internal/interview"
)

// EvaluateInput carries one answer to score against its question.
type EvaluateInput struct {
	QuestionPrompt string
	IdealAnswer    string
	AnswerText     string

	// Skills are the question's skill tags, included as scoring context.
	Skills []string
}

// EvaluationResult is the semantic channel's verdict on one answer.
type EvaluationResult struct {
	// RawScore is the semantic score in [0, 100].
	RawScore float64

	// Completeness and Relevance are sub-scores in [0, 100].
	Completeness float64
	Relevance    float64

	// Sentiment is a tone tag such as "confident" or "hesitant".
	Sentiment string

	// Reasoning is the model's justification.
	Reasoning string

	Strengths  []string
	Weaknesses []string

	// Gaps reports concepts missing from the answer.
	Gaps interview.Gap
}

// FollowUpInput carries the context for generating one follow-up question.
type FollowUpInput struct {
	ParentPrompt string
	AnswerText   string

	// MissingConcepts is the cumulative confirmed gap set for the parent.
	MissingConcepts []string

	// Ordinal is the follow-up's position in the sequence (1..3).
	Ordinal int

	// PriorAnswers are transcripts of related earlier answers, retrieved by
	// embedding similarity, giving the model the candidate's own phrasing.
	PriorAnswers []string
}

// RecommendationsInput summarises a finished interview for the
// recommendations call.
type RecommendationsInput struct {
	TheoreticalAvg float64
	SpeakingAvg    float64
	OverallScore   float64

	// Evaluations are per-answer digests (question, score, weaknesses).
	Evaluations []EvaluationDigest

	GapProgression interview.GapProgression

	// RemainingGaps lists concepts still missing at the end of the interview.
	RemainingGaps []string
}

// EvaluationDigest is the compact per-answer record fed to the
// recommendations prompt.
type EvaluationDigest struct {
	QuestionPrompt string
	FinalScore     float64
	Weaknesses     []string
}

// Recommendations is the personalised advice section of the completion
// summary. All slices may be empty, never nil semantics are relied upon.
type Recommendations struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	StudyTopics   []string `json:"study_topics"`
	TechniqueTips []string `json:"technique_tips"`
}

// QuestionInput carries the context for generating one interview question.
// Question planning runs upstream; this operation exists for the dev
// bootstrap path and for plan repair.
type QuestionInput struct {
	Topic      string
	Difficulty string
	Skills     []string
}

// GeneratedQuestion is a planner-grade question with its ideal answer.
type GeneratedQuestion struct {
	Prompt      string `json:"prompt"`
	IdealAnswer string `json:"ideal_answer"`
	Rationale   string `json:"rationale"`
}

// Assessor is the domain-facing LLM port.
//
// All operations are cancellable through ctx and must distinguish transient
// failures (timeouts, 5xx) from permanent ones (schema violations, 4xx) via
// [resilience.IsPermanent]-compatible wrapping.
type Assessor interface {
	// EvaluateAnswer scores one answer against its question's ideal answer.
	EvaluateAnswer(ctx context.Context, in EvaluateInput) (*EvaluationResult, error)

	// GenerateFollowUp produces the text of one gap-targeted follow-up.
	GenerateFollowUp(ctx context.Context, in FollowUpInput) (string, error)

	// GenerateRecommendations produces the advice section of the completion
	// summary. A response that is not valid JSON degrades to empty lists and
	// is logged, never failed.
	GenerateRecommendations(ctx context.Context, in RecommendationsInput) (*Recommendations, error)

	// GenerateQuestion produces one planner-grade question.
	GenerateQuestion(ctx context.Context, in QuestionInput) (*GeneratedQuestion, error)
}
