// Package app assembles the interview server: storage, evaluation pipeline,
// completion engine and session orchestrator are wired from configuration and
// exposed over one HTTP listener carrying the websocket endpoint, the summary
// endpoint, health probes and Prometheus metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/intervoxa/internal/assess"
	"github.com/MrWong99/intervoxa/internal/completion"
	"github.com/MrWong99/intervoxa/internal/config"
	"github.com/MrWong99/intervoxa/internal/health"
	"github.com/MrWong99/intervoxa/internal/observe"
	"github.com/MrWong99/intervoxa/internal/pipeline"
	"github.com/MrWong99/intervoxa/internal/resilience"
	"github.com/MrWong99/intervoxa/internal/session"
	"github.com/MrWong99/intervoxa/internal/store"
	"github.com/MrWong99/intervoxa/internal/store/memstore"
	"github.com/MrWong99/intervoxa/internal/store/postgres"
	"github.com/MrWong99/intervoxa/pkg/provider/embeddings"
	"github.com/MrWong99/intervoxa/pkg/provider/llm"
	"github.com/MrWong99/intervoxa/pkg/provider/stt"
	"github.com/MrWong99/intervoxa/pkg/provider/tts"
	"github.com/MrWong99/intervoxa/pkg/provider/vector"
)

// shutdownGrace bounds how long Shutdown waits for in-flight requests after
// the listener stops accepting.
const shutdownGrace = 15 * time.Second

// Providers bundles the external adapter ports. LLM and Embeddings are
// required; STT and TTS are optional and their absence degrades the matching
// feature (text-only answers, text-only questions).
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
}

// App is the assembled server. Create it with [New], drive it with [Run] and
// tear it down with [Shutdown].
type App struct {
	cfg       *config.Config
	providers Providers

	store    store.Store
	pinger   health.Pinger
	metrics  *observe.Metrics
	orch     *session.Orchestrator
	sessions *sessionRegistry
	server   *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option overrides one wired subsystem, mainly for tests.
type Option func(*App)

// WithStore substitutes the persistence layer. The configured DSN is ignored.
func WithStore(st store.Store) Option {
	return func(a *App) { a.store = st }
}

// WithMetrics substitutes the metrics instrument set.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ───

// New wires the full server from cfg and providers. It connects to storage
// (running migrations), builds the evaluation pipeline, completion engine and
// orchestrator, and registers every HTTP route. The returned App owns every
// resource it opened and releases them in [App.Shutdown].
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if providers.LLM == nil {
		return nil, fmt.Errorf("app: LLM provider is required")
	}
	if providers.Embeddings == nil {
		return nil, fmt.Errorf("app: embeddings provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		sessions:  newSessionRegistry(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initOrchestrator(); err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}
	a.initServer()

	return a, nil
}

// initStore selects the persistence backend: postgres when a DSN is
// configured, the in-memory store otherwise. An injected store wins.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		if p, ok := a.store.(health.Pinger); ok {
			a.pinger = p
		}
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured, using in-memory store; interviews will not survive restarts")
		a.store = memstore.New()
		return nil
	}

	pg, err := postgres.NewStore(ctx, dsn, a.cfg.Storage.EmbeddingDimensions)
	if err != nil {
		return err
	}
	a.store = pg
	a.pinger = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("connected to postgres", "embedding_dimensions", a.cfg.Storage.EmbeddingDimensions)
	return nil
}

// initOrchestrator builds the evaluation pipeline, completion engine and the
// per-turn orchestrator from the configured tunables.
func (a *App) initOrchestrator() error {
	assessor := assess.NewLLMAssessor(a.providers.LLM, 0.7)
	scorer := vector.NewEmbeddingScorer(a.providers.Embeddings)

	proc, err := pipeline.NewProcessor(pipeline.Config{
		Assessor: assessor,
		Scorer:   scorer,
		Embedder: a.providers.Embeddings,
		Weights: pipeline.Weights{
			Theoretical: a.cfg.Interview.TheoreticalWeight,
			Speaking:    a.cfg.Interview.SpeakingWeight,
		},
		LLMBreaker:    resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "llm"}),
		VectorBreaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "vector"}),
		LLMTimeout:    a.cfg.Timeouts.LLMTimeout(),
		VectorTimeout: a.cfg.Timeouts.VectorTimeout(),
		EmbedTimeout:  a.cfg.Timeouts.VectorTimeout(),
	})
	if err != nil {
		return err
	}

	engine := completion.NewEngine(a.store, assessor,
		completion.WithWeights(a.cfg.Interview.TheoreticalWeight, a.cfg.Interview.SpeakingWeight),
		completion.WithDefaultSpeakingScore(a.cfg.Interview.SpeakingDefaultWhenAbsent),
	)

	ttsProvider := a.providers.TTS
	if ttsProvider != nil && a.cfg.Speech.CacheSize > 0 {
		ttsProvider = tts.NewCache(ttsProvider, a.cfg.Speech.CacheSize)
	}

	orch, err := session.New(session.Config{
		Store:                   a.store,
		Pipeline:                proc,
		Assessor:                assessor,
		Completion:              engine,
		STT:                     a.providers.STT,
		TTS:                     ttsProvider,
		Metrics:                 a.metrics,
		SimilarityThreshold:     a.cfg.Interview.SimilarityQualityThreshold,
		InterviewFollowUpBudget: a.cfg.Interview.MaxFollowupsPerInterview,
		PerQuestionFollowUpCap:  a.cfg.Interview.MaxFollowupsPerQuestion,
		TurnDeadline:            a.cfg.Timeouts.TurnDeadline(),
		STTTimeout:              a.cfg.Timeouts.STTTimeout(),
		TTSTimeout:              a.cfg.Timeouts.TTSTimeout(),
		LLMTimeout:              a.cfg.Timeouts.LLMTimeout(),
		Voice:                   a.cfg.Speech.Voice,
		Speed:                   a.cfg.Speech.Speed,
	})
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

// initServer builds the route table and the HTTP server around it.
func (a *App) initServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", a.handleWS)
	mux.HandleFunc("GET /interviews/{id}/summary", a.handleSummary)
	if a.cfg.Providers.UseMockAdapters {
		mux.HandleFunc("POST /interviews", a.handleCreateInterview)
	}

	health.New(health.StorageChecker(a.pinger)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Lifecycle ───

// Run starts the HTTP listener and blocks until ctx is cancelled or the
// listener fails. Cancellation is not an error.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("interview server listening",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
		"mock_adapters", a.cfg.Providers.UseMockAdapters,
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops accepting connections, cancels every active interview
// session, waits up to [shutdownGrace] for in-flight turns to drain, then
// releases storage. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, shutdownGrace)
			defer cancel()
		}

		a.sessions.cancelAll()

		if sErr := a.server.Shutdown(ctx); sErr != nil {
			err = fmt.Errorf("app: http shutdown: %w", sErr)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if cErr := a.closers[i](); cErr != nil {
				slog.Warn("closer error during shutdown", "index", i, "err", cErr)
			}
		}

		slog.Info("server stopped")
	})
	return err
}
