// Package mock provides a mock llm.Provider for tests and for running the
// server with use_mock_adapters enabled.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervoxa/pkg/provider/llm"
)

// Provider is a configurable mock implementation of llm.Provider.
// It records every request it receives; all fields and methods are safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order, one per Complete call. When exhausted,
	// the last response repeats. When empty, Response is returned.
	Responses []llm.CompletionResponse

	// Response is the default reply when Responses is empty.
	Response llm.CompletionResponse

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// CompleteFunc, when set, overrides all other behaviour.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Calls records every request passed to Complete.
	Calls []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	n := len(p.Calls)
	fn := p.CompleteFunc
	err := p.Err
	var resp llm.CompletionResponse
	switch {
	case len(p.Responses) == 0:
		resp = p.Response
	case n-1 < len(p.Responses):
		resp = p.Responses[n-1]
	default:
		resp = p.Responses[len(p.Responses)-1]
	}
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
	out := resp
	return &out, nil
}

// CallCount returns the number of Complete calls received so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
