package assess

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/pkg/provider/llm"
	llmmock "github.com/MrWong99/intervoxa/pkg/provider/llm/mock"
)

func TestEvaluateAnswerParsesCleanJSON(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: `{
			"score": 62.5,
			"completeness": 55,
			"relevance": 90,
			"sentiment": "hesitant",
			"reasoning": "covered basics, missed eviction",
			"strengths": ["clear definitions"],
			"weaknesses": ["no eviction policy"],
			"gaps": {"concepts": ["LRU eviction", "TTL"], "confirmed": true}
		}`},
	}
	a := NewLLMAssessor(provider, 0.7)

	res, err := a.EvaluateAnswer(context.Background(), EvaluateInput{
		QuestionPrompt: "How does a cache evict entries?",
		IdealAnswer:    "LRU/LFU, TTL expiry, size bounds.",
		AnswerText:     "A cache stores recently used items.",
		Skills:         []string{"caching"},
	})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if res.RawScore != 62.5 {
		t.Errorf("RawScore = %v, want 62.5", res.RawScore)
	}
	if res.Sentiment != "hesitant" {
		t.Errorf("Sentiment = %q, want hesitant", res.Sentiment)
	}
	if !res.Gaps.Confirmed || len(res.Gaps.Concepts) != 2 {
		t.Errorf("Gaps = %+v, want 2 confirmed concepts", res.Gaps)
	}
	if got := provider.CallCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
	if !provider.Calls[0].ForceJSON {
		t.Error("evaluation request should force JSON output")
	}
}

func TestEvaluateAnswerToleratesCodeFence(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{
			Content: "Here is my assessment:\n```json\n{\"score\": 80, \"gaps\": {\"concepts\": [], \"confirmed\": false}}\n```",
		},
	}
	a := NewLLMAssessor(provider, 0)

	res, err := a.EvaluateAnswer(context.Background(), EvaluateInput{
		QuestionPrompt: "q", AnswerText: "a",
	})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if res.RawScore != 80 {
		t.Errorf("RawScore = %v, want 80", res.RawScore)
	}
	if res.Strengths == nil || res.Weaknesses == nil {
		t.Error("missing list keys must decode to empty slices, not nil")
	}
}

func TestEvaluateAnswerClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: `{"score": 140, "completeness": -5}`},
	}
	a := NewLLMAssessor(provider, 0)

	res, err := a.EvaluateAnswer(context.Background(), EvaluateInput{QuestionPrompt: "q", AnswerText: "a"})
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if res.RawScore != 100 {
		t.Errorf("RawScore = %v, want clamped to 100", res.RawScore)
	}
	if res.Completeness != 0 {
		t.Errorf("Completeness = %v, want clamped to 0", res.Completeness)
	}
}

func TestEvaluateAnswerMalformedJSONIsPermanent(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: "I cannot rate this answer."},
	}
	a := NewLLMAssessor(provider, 0)

	_, err := a.EvaluateAnswer(context.Background(), EvaluateInput{QuestionPrompt: "q", AnswerText: "a"})
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
	if !resilience.IsPermanent(err) {
		t.Errorf("schema violation should be permanent, got %v", err)
	}
}

func TestEvaluateAnswerPropagatesProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("backend unavailable")
	provider := &llmmock.Provider{Err: wantErr}
	a := NewLLMAssessor(provider, 0)

	_, err := a.EvaluateAnswer(context.Background(), EvaluateInput{QuestionPrompt: "q", AnswerText: "a"})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
	if resilience.IsPermanent(err) {
		t.Error("transport errors must stay retryable")
	}
}

func TestGenerateFollowUpTrimsQuotes(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: "  \"What happens when the TTL expires?\"  "},
	}
	a := NewLLMAssessor(provider, 0.7)

	text, err := a.GenerateFollowUp(context.Background(), FollowUpInput{
		ParentPrompt:    "How does a cache evict entries?",
		AnswerText:      "It just removes old stuff.",
		MissingConcepts: []string{"TTL"},
		Ordinal:         1,
	})
	if err != nil {
		t.Fatalf("GenerateFollowUp: %v", err)
	}
	if text != "What happens when the TTL expires?" {
		t.Errorf("text = %q", text)
	}
	if provider.Calls[0].ForceJSON {
		t.Error("follow-up generation must not force JSON, the output is plain text")
	}
}

func TestGenerateFollowUpEmptyIsPermanent(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Response: llm.CompletionResponse{Content: "   "}}
	a := NewLLMAssessor(provider, 0)

	_, err := a.GenerateFollowUp(context.Background(), FollowUpInput{Ordinal: 1})
	if !resilience.IsPermanent(err) {
		t.Errorf("empty follow-up should be permanent, got %v", err)
	}
}

func TestGenerateRecommendationsDegradesOnBadJSON(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: "Good luck with your studies!"},
	}
	a := NewLLMAssessor(provider, 0)

	recs, err := a.GenerateRecommendations(context.Background(), RecommendationsInput{
		OverallScore: 71.2,
	})
	if err != nil {
		t.Fatalf("malformed recommendations JSON must degrade, not fail: %v", err)
	}
	if recs.Strengths == nil || recs.StudyTopics == nil {
		t.Error("degraded recommendations must carry empty slices, not nil")
	}
	if len(recs.Strengths)+len(recs.Weaknesses)+len(recs.StudyTopics)+len(recs.TechniqueTips) != 0 {
		t.Errorf("degraded recommendations should be empty, got %+v", recs)
	}
}

func TestGenerateRecommendationsParsesLists(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: `{
			"strengths": ["solid fundamentals"],
			"weaknesses": ["vague on internals"],
			"study_topics": ["B-tree indexes"],
			"technique_tips": ["structure answers as claim then example"]
		}`},
	}
	a := NewLLMAssessor(provider, 0)

	recs, err := a.GenerateRecommendations(context.Background(), RecommendationsInput{})
	if err != nil {
		t.Fatalf("GenerateRecommendations: %v", err)
	}
	if len(recs.StudyTopics) != 1 || recs.StudyTopics[0] != "B-tree indexes" {
		t.Errorf("StudyTopics = %v", recs.StudyTopics)
	}
}

func TestGenerateQuestionRequiresPrompt(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		Response: llm.CompletionResponse{Content: `{"prompt": "", "ideal_answer": "x"}`},
	}
	a := NewLLMAssessor(provider, 0)

	_, err := a.GenerateQuestion(context.Background(), QuestionInput{Topic: "databases"})
	if !resilience.IsPermanent(err) {
		t.Errorf("empty prompt should be permanent, got %v", err)
	}
}

func TestDecodeJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"bare object", `{"a": 1}`, false},
		{"fenced", "```json\n{\"a\": 1}\n```", false},
		{"leading prose", "Sure! {\"a\": 1}", false},
		{"trailing prose", `{"a": 1} hope that helps`, false},
		{"no object", "no json here", true},
		{"empty", "", true},
		{"truncated", `{"a": `, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var v map[string]any
			err := decodeJSONObject(tt.in, &v)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeJSONObject(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
