// Package resilience provides the retry and circuit-breaker primitives that
// wrap every external adapter call: STT, TTS, LLM and vector similarity.
//
// Transient failures (timeouts, 5xx) are retried with exponential backoff
// inside the turn deadline; permanent failures (4xx, schema violations) are
// marked with [Permanent] and surface immediately. A per-provider
// [CircuitBreaker] keeps a flapping backend from consuming the whole retry
// budget of every turn.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that [Retry] stops immediately. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err is (or wraps) a permanent error.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// RetryConfig holds the backoff schedule for [Retry].
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	// Values below one select 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt. Zero selects 250ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth. Zero selects 5s.
	MaxBackoff time.Duration
}

// withDefaults fills zero-valued fields.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	return c
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff between
// attempts. It stops early on success, on a [Permanent] error, on
// [ErrCircuitOpen], or when ctx is done. name labels log lines only.
func Retry(ctx context.Context, cfg RetryConfig, name string, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", name, err, lastErr)
			}
			return fmt.Errorf("%s: %w", name, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err

		if attempt < cfg.MaxAttempts {
			slog.Warn("transient failure, backing off",
				"op", name, "attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), lastErr)
			}
			backoff *= 2
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", name, cfg.MaxAttempts, lastErr)
}
