// Package vector provides the similarity port used by the evaluation
// pipeline: a Scorer maps a (reference, candidate) text pair to a cosine
// similarity in [0, 1].
//
// The default implementation embeds both texts through an
// embeddings.Provider. A pgvector-backed path exists in the postgres store
// for questions whose ideal-answer embedding was computed at plan time.
package vector

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/intervoxa/pkg/provider/embeddings"
)

// Scorer computes the similarity of a candidate answer to a reference text.
//
// Implementations must be safe for concurrent use and must clamp results into
// [0, 1]: raw cosine similarity of embedding vectors can be slightly negative,
// and negative similarity carries no meaning for answer scoring.
type Scorer interface {
	Similarity(ctx context.Context, reference, candidate string) (float64, error)
}

// EmbeddingScorer implements Scorer by embedding both texts in one batch call
// and computing the cosine of the resulting vectors.
type EmbeddingScorer struct {
	emb embeddings.Provider
}

var _ Scorer = (*EmbeddingScorer)(nil)

// NewEmbeddingScorer creates a Scorer on top of the given embeddings provider.
func NewEmbeddingScorer(emb embeddings.Provider) *EmbeddingScorer {
	return &EmbeddingScorer{emb: emb}
}

// Similarity implements Scorer.
func (s *EmbeddingScorer) Similarity(ctx context.Context, reference, candidate string) (float64, error) {
	if reference == "" || candidate == "" {
		return 0, nil
	}
	vecs, err := s.emb.EmbedBatch(ctx, []string{reference, candidate})
	if err != nil {
		return 0, fmt.Errorf("vector: embed pair: %w", err)
	}
	return Cosine(vecs[0], vecs[1]), nil
}

// Cosine returns the cosine similarity of a and b clamped into [0, 1].
// Mismatched lengths and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
