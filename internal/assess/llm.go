package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/pkg/provider/llm"
)

// evaluateSystemPrompt frames the model as a strict technical interviewer.
const evaluateSystemPrompt = `You are a senior technical interviewer scoring a candidate's answer.
Compare the answer against the ideal answer and respond with a single JSON object:
{
  "score": <0-100>,
  "completeness": <0-100>,
  "relevance": <0-100>,
  "sentiment": "<confident|neutral|hesitant>",
  "reasoning": "<one short paragraph>",
  "strengths": ["..."],
  "weaknesses": ["..."],
  "gaps": {"concepts": ["..."], "confirmed": <true|false>}
}
Set gaps.confirmed to true only when you are certain the listed concepts are
genuinely missing or wrong, not merely unmentioned. Respond with JSON only.`

// followupSystemPrompt frames the follow-up generation call.
const followupSystemPrompt = `You are a technical interviewer probing a knowledge gap.
Write exactly one short spoken-style follow-up question that targets the missing
concepts. Do not greet, do not explain, do not number the question. Respond with
the question text only.`

// recommendationsSystemPrompt frames the end-of-interview advice call.
const recommendationsSystemPrompt = `You are a technical interview coach summarising a finished interview.
Respond with a single JSON object:
{
  "strengths": ["..."],
  "weaknesses": ["..."],
  "study_topics": ["..."],
  "technique_tips": ["..."]
}
Be specific and actionable; 3-5 entries per list. Respond with JSON only.`

// questionSystemPrompt frames planner-grade question generation.
const questionSystemPrompt = `You are a technical interview question designer.
Respond with a single JSON object:
{"prompt": "<the question>", "ideal_answer": "<a model answer>", "rationale": "<why this question>"}
Respond with JSON only.`

// LLMAssessor implements [Assessor] on top of an llm.Provider.
// Safe for concurrent use.
type LLMAssessor struct {
	provider llm.Provider

	// temperature applies to generative calls (follow-ups, questions);
	// evaluation and recommendations always run at low temperature.
	temperature float64
}

var _ Assessor = (*LLMAssessor)(nil)

// NewLLMAssessor creates an assessor on top of provider. temperature tunes
// the generative calls; zero selects the provider default.
func NewLLMAssessor(provider llm.Provider, temperature float64) *LLMAssessor {
	return &LLMAssessor{provider: provider, temperature: temperature}
}

// evaluationPayload mirrors the evaluation response schema.
type evaluationPayload struct {
	Score        float64  `json:"score"`
	Completeness float64  `json:"completeness"`
	Relevance    float64  `json:"relevance"`
	Sentiment    string   `json:"sentiment"`
	Reasoning    string   `json:"reasoning"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Gaps         struct {
		Concepts  []string `json:"concepts"`
		Confirmed bool     `json:"confirmed"`
	} `json:"gaps"`
}

// EvaluateAnswer implements Assessor.
func (a *LLMAssessor) EvaluateAnswer(ctx context.Context, in EvaluateInput) (*EvaluationResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n", in.QuestionPrompt)
	if len(in.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills probed: %s\n", strings.Join(in.Skills, ", "))
	}
	if in.IdealAnswer != "" {
		fmt.Fprintf(&sb, "Ideal answer: %s\n", in.IdealAnswer)
	}
	fmt.Fprintf(&sb, "Candidate answer: %s\n", in.AnswerText)

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: evaluateSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  0.1,
		ForceJSON:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("assess: evaluate answer: %w", err)
	}

	var payload evaluationPayload
	if err := decodeJSONObject(resp.Content, &payload); err != nil {
		// A model that cannot produce the schema will not produce it on retry
		// with the same prompt either.
		return nil, resilience.Permanent(fmt.Errorf("assess: evaluation response is not valid JSON: %w", err))
	}

	return &EvaluationResult{
		RawScore:     interview.ClampScore(payload.Score),
		Completeness: interview.ClampScore(payload.Completeness),
		Relevance:    interview.ClampScore(payload.Relevance),
		Sentiment:    payload.Sentiment,
		Reasoning:    payload.Reasoning,
		Strengths:    emptyIfNil(payload.Strengths),
		Weaknesses:   emptyIfNil(payload.Weaknesses),
		Gaps: interview.Gap{
			Concepts:  emptyIfNil(payload.Gaps.Concepts),
			Confirmed: payload.Gaps.Confirmed,
		},
	}, nil
}

// GenerateFollowUp implements Assessor.
func (a *LLMAssessor) GenerateFollowUp(ctx context.Context, in FollowUpInput) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Original question: %s\n", in.ParentPrompt)
	fmt.Fprintf(&sb, "Candidate's answer: %s\n", in.AnswerText)
	fmt.Fprintf(&sb, "Missing concepts: %s\n", strings.Join(in.MissingConcepts, ", "))
	fmt.Fprintf(&sb, "This is follow-up %d of at most %d.\n", in.Ordinal, interview.MaxFollowupsPerQuestion)
	if len(in.PriorAnswers) > 0 {
		sb.WriteString("Related earlier answers by the same candidate:\n")
		for _, prior := range in.PriorAnswers {
			fmt.Fprintf(&sb, "- %s\n", prior)
		}
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: followupSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("assess: generate follow-up: %w", err)
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if text == "" {
		return "", resilience.Permanent(fmt.Errorf("assess: empty follow-up question"))
	}
	return text, nil
}

// GenerateRecommendations implements Assessor. Malformed JSON degrades to
// empty lists per the completion contract; only transport errors propagate.
func (a *LLMAssessor) GenerateRecommendations(ctx context.Context, in RecommendationsInput) (*Recommendations, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall score: %.1f (theoretical %.1f, speaking %.1f)\n",
		in.OverallScore, in.TheoreticalAvg, in.SpeakingAvg)
	fmt.Fprintf(&sb, "Gaps: %d found, %d filled during follow-ups, %d remaining\n",
		in.GapProgression.TotalInitial, in.GapProgression.TotalFilled, in.GapProgression.TotalRemaining)
	if len(in.RemainingGaps) > 0 {
		fmt.Fprintf(&sb, "Concepts still missing: %s\n", strings.Join(in.RemainingGaps, ", "))
	}
	sb.WriteString("Per-question results:\n")
	for _, ev := range in.Evaluations {
		fmt.Fprintf(&sb, "- %q scored %.1f", ev.QuestionPrompt, ev.FinalScore)
		if len(ev.Weaknesses) > 0 {
			fmt.Fprintf(&sb, " (weak: %s)", strings.Join(ev.Weaknesses, "; "))
		}
		sb.WriteString("\n")
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: recommendationsSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  0.3,
		ForceJSON:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("assess: generate recommendations: %w", err)
	}

	var rec Recommendations
	if err := decodeJSONObject(resp.Content, &rec); err != nil {
		slog.Warn("recommendations response is not valid JSON, using empty lists", "error", err)
		rec = Recommendations{}
	}
	rec.Strengths = emptyIfNil(rec.Strengths)
	rec.Weaknesses = emptyIfNil(rec.Weaknesses)
	rec.StudyTopics = emptyIfNil(rec.StudyTopics)
	rec.TechniqueTips = emptyIfNil(rec.TechniqueTips)
	return &rec, nil
}

// GenerateQuestion implements Assessor.
func (a *LLMAssessor) GenerateQuestion(ctx context.Context, in QuestionInput) (*GeneratedQuestion, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\nDifficulty: %s\n", in.Topic, in.Difficulty)
	if len(in.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills to probe: %s\n", strings.Join(in.Skills, ", "))
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: questionSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: sb.String()}},
		Temperature:  a.temperature,
		ForceJSON:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("assess: generate question: %w", err)
	}

	var q GeneratedQuestion
	if err := decodeJSONObject(resp.Content, &q); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("assess: question response is not valid JSON: %w", err))
	}
	if q.Prompt == "" {
		return nil, resilience.Permanent(fmt.Errorf("assess: generated question has empty prompt"))
	}
	return &q, nil
}

// decodeJSONObject extracts the first JSON object from content and decodes it
// into v. Handles fenced code blocks and leading prose.
func decodeJSONObject(content string, v any) error {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 {
		s = s[:i+1]
	}
	if s == "" || s[0] != '{' {
		return fmt.Errorf("no JSON object found in %d-byte response", len(content))
	}
	return json.Unmarshal([]byte(s), v)
}

// emptyIfNil normalises a nil slice to an empty one so that downstream JSON
// marshals lists rather than null.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
