// Package completion turns a finished interview into its completion summary.
//
// The engine aggregates every persisted answer and evaluation into per-question
// summaries, gap progression and overall scores, asks the assessor for
// personalised recommendations, and then commits the summary together with the
// EVALUATING -> COMPLETE transition in one transaction. An interview can
// therefore never be COMPLETE without a summary, and a failed completion
// leaves it in EVALUATING for a retry.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/intervoxa/internal/assess"
	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/internal/store"
)

// Default channel weights, mirrored from the answer pipeline.
const (
	defaultTheoreticalWeight = 0.7
	defaultSpeakingWeight    = 0.3
)

// DefaultSpeakingScore is assumed when an interview has answers but none of
// them carry voice metrics.
const DefaultSpeakingScore = 50.0

// RecommendationsTimeout bounds the summary recommendations LLM call,
// retries included.
const RecommendationsTimeout = 20 * time.Second

// ErrCorruptedCompletion is returned when a COMPLETE interview carries no
// summary. This indicates a write outside the completion transaction.
var ErrCorruptedCompletion = fmt.Errorf("completion: interview is COMPLETE but has no summary")

// Engine computes and commits completion summaries. Safe for concurrent use.
type Engine struct {
	store    store.Store
	assessor assess.Assessor

	theoreticalWeight float64
	speakingWeight    float64
	defaultSpeaking   float64
}

// Option configures an [Engine].
type Option func(*Engine)

// WithWeights overrides the channel weights used for the overall score.
func WithWeights(theoretical, speaking float64) Option {
	return func(e *Engine) {
		e.theoreticalWeight = theoretical
		e.speakingWeight = speaking
	}
}

// WithDefaultSpeakingScore overrides the speaking score assumed when no
// answer in the interview carries voice metrics.
func WithDefaultSpeakingScore(score float64) Option {
	return func(e *Engine) {
		e.defaultSpeaking = score
	}
}

// NewEngine creates a completion engine over st and assessor.
func NewEngine(st store.Store, assessor assess.Assessor, opts ...Option) *Engine {
	e := &Engine{
		store:             st,
		assessor:          assessor,
		theoreticalWeight: defaultTheoreticalWeight,
		speakingWeight:    defaultSpeakingWeight,
		defaultSpeaking:   DefaultSpeakingScore,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Complete finishes the interview: it builds the summary, obtains
// recommendations, and commits summary plus COMPLETE transition atomically.
//
// Calling Complete on an already COMPLETE interview returns the stored summary
// without touching anything. Any state other than EVALUATING or COMPLETE fails
// with a transition error.
func (e *Engine) Complete(ctx context.Context, interviewID string) (*interview.CompletionSummary, error) {
	iv, err := e.store.Interviews().Get(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("completion: load interview: %w", err)
	}

	if iv.Status == interview.StatusComplete {
		if s := iv.Summary(); s != nil {
			return s, nil
		}
		return nil, ErrCorruptedCompletion
	}
	if iv.Status != interview.StatusEvaluating {
		return nil, &interview.TransitionError{From: iv.Status, To: interview.StatusComplete}
	}
	if iv.CurrentIndex+1 < len(iv.QuestionIDs) {
		return nil, fmt.Errorf("completion: %d questions remain in the plan", len(iv.QuestionIDs)-iv.CurrentIndex-1)
	}

	summary, digests, remainingGaps, err := e.buildSummary(ctx, iv)
	if err != nil {
		return nil, err
	}

	// Recommendations run outside the transaction so no lock is held across
	// network I/O. A failure after retries fails the whole completion and the
	// interview stays in EVALUATING; a malformed response degrades to empty
	// lists inside the assessor and does not surface here.
	if err := e.attachRecommendations(ctx, summary, digests, remainingGaps); err != nil {
		return nil, fmt.Errorf("completion: recommendations: %w", err)
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Store) error {
		fresh, err := tx.Interviews().Get(ctx, iv.ID)
		if err != nil {
			return err
		}
		if fresh.Status == interview.StatusComplete {
			// A concurrent completion won the race; keep its result.
			return nil
		}
		if err := fresh.ProceedToNextQuestion(); err != nil {
			return err
		}
		if fresh.Status != interview.StatusComplete {
			return fmt.Errorf("completion: plan not exhausted after proceed (status %s)", fresh.Status)
		}
		summary.CompletedAt = *fresh.CompletedAt
		fresh.SetSummary(summary)
		return tx.Interviews().Update(ctx, fresh)
	})
	if err != nil {
		return nil, fmt.Errorf("completion: commit: %w", err)
	}

	// Re-read in case a concurrent completion committed first.
	final, err := e.store.Interviews().Get(ctx, iv.ID)
	if err != nil {
		return nil, fmt.Errorf("completion: reload: %w", err)
	}
	if s := final.Summary(); s != nil {
		return s, nil
	}
	return nil, ErrCorruptedCompletion
}

// buildSummary aggregates the interview's persisted records into the summary
// body (recommendations excluded).
func (e *Engine) buildSummary(ctx context.Context, iv *interview.Interview) (*interview.CompletionSummary, []assess.EvaluationDigest, []string, error) {
	answers, err := e.store.Answers().ListByInterview(ctx, iv.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("completion: list answers: %w", err)
	}
	evaluations, err := e.store.Evaluations().ListByInterview(ctx, iv.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("completion: list evaluations: %w", err)
	}

	answerByQuestion := make(map[string]*interview.Answer, len(answers))
	for _, a := range answers {
		answerByQuestion[a.QuestionID] = a
	}
	evalByQuestion := make(map[string]*interview.Evaluation, len(evaluations))
	for _, ev := range evaluations {
		evalByQuestion[ev.QuestionID] = ev
	}

	summary := &interview.CompletionSummary{
		TotalQuestions: len(iv.QuestionIDs),
		TotalFollowUps: len(iv.FollowUpIDs),
		Questions:      []interview.QuestionSummary{},
		Strengths:      []string{},
		Weaknesses:     []string{},
		StudyTopics:    []string{},
		TechniqueTips:  []string{},
	}

	var (
		digests       []assess.EvaluationDigest
		remainingGaps []string
	)
	for _, qid := range iv.QuestionIDs {
		qs, digest, remaining, err := e.summarizeQuestion(ctx, iv.ID, qid, answerByQuestion, evalByQuestion)
		if err != nil {
			return nil, nil, nil, err
		}
		summary.Questions = append(summary.Questions, qs)
		summary.GapProgression.TotalInitial += len(qs.InitialGaps)
		summary.GapProgression.TotalFilled += len(qs.FilledGaps)
		summary.GapProgression.TotalRemaining += len(qs.RemainingGaps)
		if digest != nil {
			digests = append(digests, *digest)
		}
		remainingGaps = append(remainingGaps, remaining...)
	}

	summary.TheoreticalAvg, summary.SpeakingAvg, summary.OverallScore = e.scores(evaluations)
	return summary, digests, remainingGaps, nil
}

// summarizeQuestion builds one per-question section: the main answer's score
// and the gap progression across its follow-up sequence.
func (e *Engine) summarizeQuestion(
	ctx context.Context,
	interviewID, questionID string,
	answerByQuestion map[string]*interview.Answer,
	evalByQuestion map[string]*interview.Evaluation,
) (interview.QuestionSummary, *assess.EvaluationDigest, []string, error) {
	qs := interview.QuestionSummary{
		QuestionID:    questionID,
		InitialGaps:   []string{},
		FilledGaps:    []string{},
		RemainingGaps: []string{},
	}

	question, err := e.store.Questions().Get(ctx, questionID)
	switch {
	case err == nil:
		qs.Prompt = question.Prompt
	case errors.Is(err, store.ErrNotFound):
		// Tolerate plans referencing questions outside this store.
	default:
		return qs, nil, nil, fmt.Errorf("completion: load question %s: %w", questionID, err)
	}

	followups, err := e.store.FollowUps().ListByParent(ctx, interviewID, questionID)
	if err != nil {
		return qs, nil, nil, fmt.Errorf("completion: list follow-ups: %w", err)
	}
	qs.FollowUps = len(followups)

	mainAnswer := answerByQuestion[questionID]
	if mainAnswer == nil {
		return qs, nil, nil, nil
	}
	if mainAnswer.Gaps.Confirmed {
		qs.InitialGaps = append(qs.InitialGaps, mainAnswer.Gaps.Concepts...)
	}

	var digest *assess.EvaluationDigest
	if ev := evalByQuestion[questionID]; ev != nil {
		qs.Score = ev.FinalScore
		digest = &assess.EvaluationDigest{
			QuestionPrompt: qs.Prompt,
			FinalScore:     ev.FinalScore,
			Weaknesses:     ev.Weaknesses,
		}
	}

	// The last answered follow-up determines which initial gaps survived.
	finalGaps := qs.InitialGaps
	for i := len(followups) - 1; i >= 0; i-- {
		if fa := answerByQuestion[followups[i].ID]; fa != nil {
			if fa.Gaps.Confirmed {
				finalGaps = fa.Gaps.Concepts
			} else {
				finalGaps = []string{}
			}
			break
		}
	}

	// remaining is the final set itself, not its overlap with the initial
	// set: a gap first surfaced by a follow-up answer still counts.
	qs.RemainingGaps = append([]string{}, finalGaps...)
	qs.FilledGaps = subtract(qs.InitialGaps, finalGaps)
	return qs, digest, qs.RemainingGaps, nil
}

// scores computes the channel averages and the weighted overall score. An
// interview with no evaluations scores zero across the board; evaluations
// without voice data fall back to the default speaking score.
func (e *Engine) scores(evaluations []*interview.Evaluation) (theoretical, speaking, overall float64) {
	if len(evaluations) == 0 {
		return 0, 0, 0
	}

	var (
		theoSum  float64
		voiceSum float64
		voiceN   int
	)
	for _, ev := range evaluations {
		theoSum += ev.FinalScore
		if ev.Voice != nil {
			voiceSum += ev.Voice.OverallScore()
			voiceN++
		}
	}

	theoretical = theoSum / float64(len(evaluations))
	if voiceN > 0 {
		speaking = voiceSum / float64(voiceN)
	} else {
		speaking = e.defaultSpeaking
	}
	overall = interview.ClampScore(e.theoreticalWeight*theoretical + e.speakingWeight*speaking)
	return theoretical, speaking, overall
}

// attachRecommendations fills the advice sections with retry around the
// recommendations call. Only transport failures surface: schema violations
// were already degraded to empty lists by the assessor.
func (e *Engine) attachRecommendations(ctx context.Context, summary *interview.CompletionSummary, digests []assess.EvaluationDigest, remainingGaps []string) error {
	callCtx, cancel := context.WithTimeout(ctx, RecommendationsTimeout)
	defer cancel()

	var recs *assess.Recommendations
	err := resilience.Retry(callCtx, resilience.RetryConfig{}, "llm.recommendations", func(ctx context.Context) error {
		var err error
		recs, err = e.assessor.GenerateRecommendations(ctx, assess.RecommendationsInput{
			TheoreticalAvg: summary.TheoreticalAvg,
			SpeakingAvg:    summary.SpeakingAvg,
			OverallScore:   summary.OverallScore,
			Evaluations:    digests,
			GapProgression: summary.GapProgression,
			RemainingGaps:  remainingGaps,
		})
		return err
	})
	if err != nil {
		return err
	}
	summary.Strengths = recs.Strengths
	summary.Weaknesses = recs.Weaknesses
	summary.StudyTopics = recs.StudyTopics
	summary.TechniqueTips = recs.TechniqueTips
	return nil
}

// subtract returns the elements of a not present in b, case-folded.
func subtract(a, b []string) []string {
	out := []string{}
	for _, x := range a {
		found := false
		for _, y := range b {
			if strings.EqualFold(x, y) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, x)
		}
	}
	return out
}
