// Package mock provides a scripted vector.Scorer for tests and mock mode.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/intervoxa/pkg/provider/vector"
)

var _ vector.Scorer = (*Scorer)(nil)

// Scorer is a scripted mock implementation of vector.Scorer.
// Safe for concurrent use.
type Scorer struct {
	mu sync.Mutex

	// Scores are returned in call order; when exhausted the last one repeats.
	// When empty, Score is returned.
	Scores []float64

	// Score is the default similarity when Scores is empty.
	Score float64

	// Err, when non-nil, is returned by every call.
	Err error

	// Calls records every (reference, candidate) pair.
	Calls [][2]string
}

// Similarity implements vector.Scorer.
func (s *Scorer) Similarity(ctx context.Context, reference, candidate string) (float64, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, [2]string{reference, candidate})
	n := len(s.Calls)
	err := s.Err
	score := s.Score
	if len(s.Scores) > 0 {
		if n-1 < len(s.Scores) {
			score = s.Scores[n-1]
		} else {
			score = s.Scores[len(s.Scores)-1]
		}
	}
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return score, nil
}
