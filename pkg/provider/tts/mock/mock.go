// Package mock provides a mock tts.Provider for tests and for running the
// server with use_mock_adapters enabled.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervoxa/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a configurable mock implementation of tts.Provider.
// It records every request; safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by every Synthesize call. Defaults to a small canned
	// payload when nil.
	Audio []byte

	// VoiceList is returned by Voices. Defaults to ["mock"].
	VoiceList []string

	// Err, when non-nil, is returned by every Synthesize call.
	Err error

	// Calls records every request passed to Synthesize.
	Calls []tts.Request
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	err := p.Err
	audio := p.Audio
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if audio == nil {
		audio = []byte("mock-audio:" + req.Text)
	}
	return audio, nil
}

// Voices implements tts.Provider.
func (p *Provider) Voices(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.VoiceList == nil {
		return []string{"mock"}, nil
	}
	return append([]string(nil), p.VoiceList...), nil
}

// CallCount returns the number of Synthesize calls received so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
