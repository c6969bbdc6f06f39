package vectormath

import (
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

func TestCosineSimilarityIgnoresMagnitude(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{2, 4, 6}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("CosineSimilarity() error = %v", err)
	}
	if math.Abs(sim-1) > 1e-9 {
		t.Fatalf("expected similarity 1 for parallel vectors, got %f", sim)
	}
}

func TestCosineSimilarityKnownAngles(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-3, 0}, want: -1},
		{name: "45 degrees", a: []float32{1, 0}, b: []float32{1, 1}, want: 1 / math.Sqrt2},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CosineSimilarity(tc.a, tc.b)
			if err != nil {
				t.Fatalf("CosineSimilarity() error = %v", err)
			}
			if math.Abs(got-tc.want) > 1e-6 {
				t.Fatalf("expected %f, got %f", tc.want, got)
			}
		})
	}
}

func TestCosineDistanceIsOneMinusSimilarity(t *testing.T) {
	dist, err := CosineDistance([]float32{1, 0}, []float32{0, 1})
	if err != nil {
		t.Fatalf("CosineDistance() error = %v", err)
	}
	if math.Abs(dist-1) > 1e-9 {
		t.Fatalf("expected distance 1 for orthogonal vectors, got %f", dist)
	}
}

func TestCosineSimilarityRejectsDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}

	_, err = CosineSimilarity(nil, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for empty vectors, got %v", err)
	}
}

func TestCosineSimilarityNonFiniteComponentsScoreZero(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	for _, b := range [][]float32{{nan, 1}, {inf, 1}, {inf, -inf}} {
		sim, err := CosineSimilarity([]float32{1, 1}, b)
		if err != nil {
			t.Fatalf("CosineSimilarity(%v) error = %v", b, err)
		}
		if sim != 0 {
			t.Fatalf("expected 0 for %v, got %v", b, sim)
		}
	}
}
