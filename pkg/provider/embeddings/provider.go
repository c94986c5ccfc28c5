// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text strings to dense float32 vectors (e.g.
// OpenAI text-embedding-3 or a local Ollama embedding model). The vectors
// drive the answer-similarity channel of the evaluation pipeline and the
// pgvector-backed semantic retrieval of prior answers.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider instance share the same dimensionality
// (Dimensions). Vectors from different providers or models must never be mixed
// in a single similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The result
	// has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in a single provider
	// call. The i-th result corresponds to texts[i]. On error no partial
	// results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length produced by this provider.
	Dimensions() int

	// ModelID returns the provider-specific embedding model identifier.
	ModelID() string
}
