package interview

import "time"

// Status is the lifecycle state of an [Interview].
type Status string

const (
	// StatusPlanning means the upstream planner is still producing the question
	// plan. The session protocol rejects all answer frames in this state.
	StatusPlanning Status = "PLANNING"

	// StatusIdle means a frozen plan with ideal answers exists and the interview
	// is waiting for the candidate to connect.
	StatusIdle Status = "IDLE"

	// StatusQuestioning means a main question has been asked and the interview
	// is waiting for the candidate's answer.
	StatusQuestioning Status = "QUESTIONING"

	// StatusEvaluating means an answer has arrived and the dual-channel
	// evaluation pipeline is running.
	StatusEvaluating Status = "EVALUATING"

	// StatusFollowUp means a gap-targeted follow-up question has been asked and
	// the interview is waiting for the candidate's answer to it.
	StatusFollowUp Status = "FOLLOW_UP"

	// StatusComplete is terminal. A COMPLETE interview always carries a
	// completion summary in its plan metadata.
	StatusComplete Status = "COMPLETE"

	// StatusCancelled is terminal.
	StatusCancelled Status = "CANCELLED"
)

// IsTerminal reports whether s permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// IsValid reports whether s is a recognised status value.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanning, StatusIdle, StatusQuestioning, StatusEvaluating,
		StatusFollowUp, StatusComplete, StatusCancelled:
		return true
	}
	return false
}

// Question is a planned main question. Questions are produced by the upstream
// planning phase and are immutable once the plan is frozen; the core only
// reads them.
type Question struct {
	// ID is the opaque question identifier referenced by the plan.
	ID string

	// Prompt is the question text presented (and synthesised) to the candidate.
	Prompt string

	// IdealAnswer is the reference answer the semantic channel scores against.
	// May be empty for open-ended questions.
	IdealAnswer string

	// Difficulty is a free-form difficulty label assigned by the planner.
	Difficulty string

	// Skills lists the skill tags this question probes.
	Skills []string

	// Rationale records why the planner selected this question.
	Rationale string

	// TTSReady indicates the prompt has been normalised for speech synthesis.
	TTSReady bool

	// IdealEmbedding is the embedding vector of IdealAnswer, computed at plan
	// time. Empty when the plan was ingested without an embeddings provider.
	IdealEmbedding []float32
}

// FollowUpQuestion is a gap-targeted question generated during an answer turn.
// It is created exclusively by the session orchestrator and immutable afterwards.
type FollowUpQuestion struct {
	ID               string
	InterviewID      string
	ParentQuestionID string

	// Prompt is the generated follow-up text.
	Prompt string

	// Ordinal is this follow-up's position in the sequence for its parent (1..3).
	Ordinal int

	// Reason lists the missing concepts that triggered generation.
	Reason []string

	CreatedAt time.Time
}

// Gap is a structured report of concepts missing from an answer.
type Gap struct {
	// Concepts are the concept names the evaluator found absent or wrong.
	Concepts []string `json:"concepts"`

	// Confirmed is true when the evaluator is confident the concepts are
	// genuinely missing rather than merely unmentioned.
	Confirmed bool `json:"confirmed"`
}

// VoiceMetrics holds the acoustic measurements of a spoken answer.
// All component scores are in [0, 1].
type VoiceMetrics struct {
	Intonation      float64 `json:"intonation"`
	Fluency         float64 `json:"fluency"`
	Confidence      float64 `json:"confidence"`
	SpeakingRateWPM int     `json:"speaking_rate_wpm"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// OverallScore converts the component scores into the [0, 100] speaking score:
// the mean of intonation, fluency and confidence scaled by 100.
func (v VoiceMetrics) OverallScore() float64 {
	return (v.Intonation + v.Fluency + v.Confidence) / 3.0 * 100.0
}

// Answer is one candidate answer to a main or follow-up question.
type Answer struct {
	ID          string
	InterviewID string

	// QuestionID references either a main [Question] or a [FollowUpQuestion].
	QuestionID string

	// Transcript is the answer text — either typed directly or produced by STT.
	Transcript string

	// Voice holds acoustic measurements for spoken answers; nil for text answers.
	Voice *VoiceMetrics

	// Similarity is the vector similarity to the ideal answer in [0.01, 1].
	// Exactly 0.0 is forbidden; see [ClampSimilarity].
	Similarity float64

	// Gaps is the evaluator's missing-concept report.
	Gaps Gap

	// EvaluationID references the Answer's [Evaluation]; empty until evaluated.
	EvaluationID string

	// Embedding is the answer transcript's embedding vector, kept for semantic
	// retrieval when generating follow-up context. May be nil.
	Embedding []float32

	CreatedAt time.Time
}

// Evaluation is the immutable record of one answer's dual-channel scores.
// Created by the answer pipeline, persisted once, never mutated.
type Evaluation struct {
	ID          string
	AnswerID    string
	QuestionID  string
	InterviewID string

	// RawScore is the semantic channel score in [0, 100] before weighting.
	RawScore float64

	// FinalScore is the weighted combination of the semantic and speaking
	// channels in [0, 100]. Equal to RawScore for text-only answers.
	FinalScore float64

	// Completeness and Relevance are the evaluator's sub-scores in [0, 100].
	Completeness float64
	Relevance    float64

	// Sentiment is the evaluator's tone tag (e.g. "confident", "hesitant").
	Sentiment string

	// Reasoning is the evaluator's free-text justification.
	Reasoning string

	Strengths  []string
	Weaknesses []string

	// Voice mirrors the answer's acoustic measurements; nil for text answers.
	Voice *VoiceMetrics

	CreatedAt time.Time
}

// QuestionSummary is the per-main-question section of a [CompletionSummary].
type QuestionSummary struct {
	QuestionID string `json:"question_id"`
	Prompt     string `json:"prompt"`

	// Score is the main answer's final score; zero when never answered.
	Score float64 `json:"score"`

	// FollowUps is the number of follow-ups asked under this question.
	FollowUps int `json:"follow_ups"`

	// InitialGaps are confirmed missing concepts in the main answer.
	InitialGaps []string `json:"initial_gaps"`

	// FilledGaps are initial gaps no longer missing after the follow-up sequence.
	FilledGaps []string `json:"filled_gaps"`

	// RemainingGaps are confirmed gaps still present in the last follow-up answer.
	RemainingGaps []string `json:"remaining_gaps"`
}

// GapProgression aggregates gap counts across the whole interview.
type GapProgression struct {
	TotalInitial   int `json:"total_initial"`
	TotalFilled    int `json:"total_filled"`
	TotalRemaining int `json:"total_remaining"`
}

// CompletionSummary is the aggregated result of a completed interview. It is
// stored in the aggregate's plan metadata under [MetaCompletionSummary] and is
// the payload of the interview_complete frame and the summary endpoint.
type CompletionSummary struct {
	OverallScore   float64 `json:"overall_score"`
	TheoreticalAvg float64 `json:"theoretical_score_avg"`
	SpeakingAvg    float64 `json:"speaking_score_avg"`

	TotalQuestions int `json:"total_questions"`
	TotalFollowUps int `json:"total_follow_ups"`

	Questions      []QuestionSummary `json:"questions"`
	GapProgression GapProgression    `json:"gap_progression"`

	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	StudyTopics   []string `json:"study_topics"`
	TechniqueTips []string `json:"technique_tips"`

	CompletedAt time.Time `json:"completed_at"`
}

// MetaCompletionSummary is the plan metadata key under which the completion
// summary of a COMPLETE interview is stored.
const MetaCompletionSummary = "completion_summary"

// SimilarityFloor is the minimum representable similarity score. A measured
// similarity of exactly zero is stored as this sentinel so that "measured as
// essentially unrelated" stays distinguishable from "not measured".
const SimilarityFloor = 0.01

// ClampSimilarity clamps s into [SimilarityFloor, 1]. Values at or below zero
// become the floor sentinel; values above one are capped.
func ClampSimilarity(s float64) float64 {
	if s <= 0 {
		return SimilarityFloor
	}
	if s > 1 {
		return 1
	}
	return s
}

// ClampScore clamps a [0, 100] channel score into range.
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
