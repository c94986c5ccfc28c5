// Package pipeline runs the dual-channel answer evaluation: the theoretical
// channel (LLM evaluation plus vector similarity against the ideal answer)
// and the speaking channel (acoustic metrics) execute concurrently, and their
// weighted combination becomes the answer's final score.
//
// The pipeline is compute-only. It talks to adapters and returns a fully
// populated result or an error; persistence is the caller's transaction.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervoxa/internal/assess"
	"github.com/MrWong99/intervoxa/internal/interview"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/pkg/provider/embeddings"
	"github.com/MrWong99/intervoxa/pkg/provider/vector"
)

// Default channel weights. They must sum to one; the config loader enforces
// that for overrides.
const (
	DefaultTheoreticalWeight = 0.7
	DefaultSpeakingWeight    = 0.3
)

// Adapter call budgets. Each channel gets its own deadline carved out of the
// turn context so one slow adapter cannot starve the others.
const (
	DefaultLLMTimeout    = 15 * time.Second
	DefaultVectorTimeout = 2 * time.Second
	DefaultEmbedTimeout  = 2 * time.Second
)

// Weights is the final-score combination. Zero values select the defaults.
type Weights struct {
	Theoretical float64
	Speaking    float64
}

func (w Weights) withDefaults() Weights {
	if w.Theoretical == 0 && w.Speaking == 0 {
		return Weights{Theoretical: DefaultTheoreticalWeight, Speaking: DefaultSpeakingWeight}
	}
	return w
}

// Config assembles a [Processor].
type Config struct {
	// Assessor runs the semantic evaluation. Required.
	Assessor assess.Assessor

	// Scorer measures answer-to-ideal similarity. Required.
	Scorer vector.Scorer

	// Embedder computes the answer transcript embedding for later semantic
	// retrieval. Optional; when nil the result carries no embedding.
	Embedder embeddings.Provider

	// Weights combines the two channels into the final score.
	Weights Weights

	// Retry is applied to each adapter call. Zero values select the
	// resilience defaults.
	Retry resilience.RetryConfig

	// LLMBreaker and VectorBreaker guard their adapters. Optional.
	LLMBreaker    *resilience.CircuitBreaker
	VectorBreaker *resilience.CircuitBreaker

	// LLMTimeout, VectorTimeout and EmbedTimeout bound the individual adapter
	// calls. Zero values select the defaults.
	LLMTimeout    time.Duration
	VectorTimeout time.Duration
	EmbedTimeout  time.Duration
}

// Input is one answer to evaluate.
type Input struct {
	// Question is the main or follow-up question being answered. For
	// follow-ups the parent's ideal answer is carried here.
	QuestionPrompt string
	IdealAnswer    string
	Skills         []string

	// Transcript is the answer text.
	Transcript string

	// Spoken is true when the answer arrived as audio. Text answers skip the
	// speaking channel entirely.
	Spoken bool

	// Voice holds the STT provider's acoustic measurements, when it supplied
	// any. Nil triggers heuristic analysis for spoken answers.
	Voice *interview.VoiceMetrics

	// AudioDuration is the spoken answer's length, used by the heuristic
	// analysis when Voice is nil.
	AudioDuration time.Duration
}

// Result is the pipeline's verdict, ready to persist.
type Result struct {
	// Evaluation carries both channel scores. ID and reference fields are left
	// empty for the caller to assign inside its transaction.
	Evaluation interview.Evaluation

	// Similarity is the clamped vector similarity in [0.01, 1].
	Similarity float64

	// Gaps is the semantic channel's missing-concept report.
	Gaps interview.Gap

	// Embedding is the transcript embedding; nil when no embedder is wired.
	Embedding []float32

	// Voice is the speaking channel's measurements; nil for text answers.
	Voice *interview.VoiceMetrics
}

// Processor executes the dual-channel evaluation. Safe for concurrent use.
type Processor struct {
	cfg Config
}

// NewProcessor validates cfg and builds a processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Assessor == nil {
		return nil, fmt.Errorf("pipeline: assessor is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("pipeline: vector scorer is required")
	}
	cfg.Weights = cfg.Weights.withDefaults()
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.VectorTimeout <= 0 {
		cfg.VectorTimeout = DefaultVectorTimeout
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Processor{cfg: cfg}, nil
}

// Evaluate runs both channels concurrently and combines them. Any channel
// failure fails the whole evaluation; the caller persists nothing partial.
func (p *Processor) Evaluate(ctx context.Context, in Input) (*Result, error) {
	if in.Transcript == "" {
		return nil, fmt.Errorf("pipeline: empty transcript")
	}

	var (
		evalRes    *assess.EvaluationResult
		similarity float64
		embedding  []float32
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(gctx, p.cfg.LLMTimeout)
		defer cancel()
		return resilience.Retry(callCtx, p.cfg.Retry, "llm.evaluate", func(ctx context.Context) error {
			return p.execute(p.cfg.LLMBreaker, func() error {
				res, err := p.cfg.Assessor.EvaluateAnswer(ctx, assess.EvaluateInput{
					QuestionPrompt: in.QuestionPrompt,
					IdealAnswer:    in.IdealAnswer,
					AnswerText:     in.Transcript,
					Skills:         in.Skills,
				})
				if err != nil {
					return err
				}
				evalRes = res
				return nil
			})
		})
	})

	g.Go(func() error {
		// Open-ended questions have no reference text; the quality gate then
		// never fires and follow-ups hinge on the gap report alone.
		if in.IdealAnswer == "" {
			similarity = interview.SimilarityFloor
			return nil
		}
		callCtx, cancel := context.WithTimeout(gctx, p.cfg.VectorTimeout)
		defer cancel()
		return resilience.Retry(callCtx, p.cfg.Retry, "vector.similarity", func(ctx context.Context) error {
			return p.execute(p.cfg.VectorBreaker, func() error {
				s, err := p.cfg.Scorer.Similarity(ctx, in.IdealAnswer, in.Transcript)
				if err != nil {
					return err
				}
				similarity = interview.ClampSimilarity(s)
				return nil
			})
		})
	})

	if p.cfg.Embedder != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, p.cfg.EmbedTimeout)
			defer cancel()
			return resilience.Retry(callCtx, p.cfg.Retry, "embeddings.embed", func(ctx context.Context) error {
				vec, err := p.cfg.Embedder.Embed(ctx, in.Transcript)
				if err != nil {
					return err
				}
				embedding = vec
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	voice, speaking := p.speakingChannel(in)

	// The speaking channel only weighs in when it produced metrics: a spoken
	// answer that yielded none scores on the theoretical channel alone.
	theoretical := interview.ClampScore(evalRes.RawScore)
	final := theoretical
	if voice != nil {
		final = interview.ClampScore(
			p.cfg.Weights.Theoretical*theoretical + p.cfg.Weights.Speaking*speaking)
	}

	return &Result{
		Evaluation: interview.Evaluation{
			RawScore:     theoretical,
			FinalScore:   final,
			Completeness: evalRes.Completeness,
			Relevance:    evalRes.Relevance,
			Sentiment:    evalRes.Sentiment,
			Reasoning:    evalRes.Reasoning,
			Strengths:    evalRes.Strengths,
			Weaknesses:   evalRes.Weaknesses,
			Voice:        voice,
		},
		Similarity: similarity,
		Gaps:       evalRes.Gaps,
		Embedding:  embedding,
		Voice:      voice,
	}, nil
}

// speakingChannel resolves the acoustic metrics and their score for in.
// Text answers carry no voice data and contribute nothing to the final score.
func (p *Processor) speakingChannel(in Input) (*interview.VoiceMetrics, float64) {
	if !in.Spoken {
		return nil, 0
	}
	if in.Voice != nil {
		return in.Voice, interview.ClampScore(in.Voice.OverallScore())
	}
	if metrics := AnalyzeSpeech(in.Transcript, in.AudioDuration); metrics != nil {
		return metrics, interview.ClampScore(metrics.OverallScore())
	}
	return nil, 0
}

// execute runs fn through breaker when one is configured.
func (p *Processor) execute(breaker *resilience.CircuitBreaker, fn func() error) error {
	if breaker == nil {
		return fn()
	}
	return breaker.Execute(fn)
}

// Vector similarity against a precomputed ideal embedding, for callers that
// already hold both vectors. Falls back to the floor sentinel on empty input.
func PrecomputedSimilarity(ideal, answer []float32) float64 {
	if len(ideal) == 0 || len(answer) == 0 {
		return interview.SimilarityFloor
	}
	return interview.ClampSimilarity(vector.Cosine(ideal, answer))
}
