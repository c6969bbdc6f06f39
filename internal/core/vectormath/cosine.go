// Package vectormath holds the pure similarity functions used by retrieval.
package vectormath

import (
	"fmt"
	"math"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Accumulation is done in float64. A zero-length vector has similarity 0, and
// so does any pair whose result is not finite (NaN or Inf components).
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, nil
	}
	// Rounding can push parallel vectors a hair past the bounds.
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// CosineDistance is 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}
