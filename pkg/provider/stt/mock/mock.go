// Package mock provides a mock stt.Provider for tests and for running the
// server with use_mock_adapters enabled.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/intervoxa/pkg/provider/stt"
)

var _ stt.Provider = (*Provider)(nil)

// Provider is a configurable mock implementation of stt.Provider.
// It records every request; safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call when Err is nil and
	// TranscribeFunc is unset. A zero Result yields a canned transcript.
	Result stt.Result

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	// ErrCount fails only the first ErrCount calls with Err, then succeeds.
	// Zero means Err (when set) applies to every call.
	ErrCount int

	// TranscribeFunc, when set, overrides all other behaviour.
	TranscribeFunc func(ctx context.Context, req stt.Request) (*stt.Result, error)

	// Calls records every request passed to Transcribe.
	Calls []stt.Request
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	n := len(p.Calls)
	fn := p.TranscribeFunc
	err := p.Err
	if err != nil && p.ErrCount > 0 && n > p.ErrCount {
		err = nil
	}
	res := p.Result
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if res.Text == "" {
		res.Text = "mock transcript"
	}
	if res.Duration == 0 {
		res.Duration = 5 * time.Second
	}
	out := res
	return &out, nil
}

// CallCount returns the number of Transcribe calls received so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
