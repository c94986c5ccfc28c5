// Package mock provides a deterministic mock embeddings.Provider for tests
// and for running the server with use_mock_adapters enabled.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/MrWong99/intervoxa/pkg/provider/embeddings"
)

// Dims is the vector length produced by the mock provider.
const Dims = 64

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a deterministic embeddings mock: the vector for a given text is
// a function of its token set, so similar texts produce similar vectors and
// identical texts produce identical vectors. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by every call.
	Err error

	// Calls records every text passed to Embed/EmbedBatch.
	Calls []string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, texts...)
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return Dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "mock-embed" }

// hashVector folds each whitespace-separated token into a bucket of a fixed
// size vector and normalises the result to unit length.
func hashVector(text string) []float32 {
	vec := make([]float64, Dims)
	start := -1
	addToken := func(tok string) {
		if tok == "" {
			return
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%Dims]++
	}
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			if start >= 0 {
				addToken(text[start:i])
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, Dims)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
