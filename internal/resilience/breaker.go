package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker is
// open and its reset timeout has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is the operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrCircuitOpen] until the reset timeout.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probes through after the reset
	// timeout; their outcome decides between closing and re-opening.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
// Zero-valued fields get defaults: 5 failures, 30s reset, 2 probes.
type BreakerConfig struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenProbes is how many consecutive probe successes close the breaker.
	HalfOpenProbes int
}

// CircuitBreaker is a classic three-state breaker (closed → open → half-open)
// guarding one external provider. Safe for concurrent use.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probeWins int
}

// NewCircuitBreaker creates a breaker with defaults applied to cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 2
	}
	return &CircuitBreaker{cfg: cfg}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs fn unless the breaker is open. Permanent errors count as
// failures like any other: a backend rejecting every request deserves an open
// breaker regardless of the rejection class.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.probeWins = 0
		slog.Info("circuit breaker half-open", "name", cb.cfg.Name)
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		if cb.state == BreakerHalfOpen || cb.failures >= cb.cfg.MaxFailures {
			if cb.state != BreakerOpen {
				slog.Warn("circuit breaker opened",
					"name", cb.cfg.Name, "consecutive_failures", cb.failures)
			}
			cb.state = BreakerOpen
			cb.openedAt = time.Now()
		}
		return err
	}

	cb.failures = 0
	if cb.state == BreakerHalfOpen {
		cb.probeWins++
		if cb.probeWins >= cb.cfg.HalfOpenProbes {
			cb.state = BreakerClosed
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}
	}
	return nil
}
