// Package similarity scores candidate vectors against a query and selects
// the top-K hits.
package similarity

import (
	"fmt"
	"math"
	"sort"

	"github.com/carousel-labs/pricedex/internal/domain"
)

// Cosine computes cosine similarity dot(a,b)/(|a|*|b|), clamped to [0,1] to
// absorb floating-point drift. Either vector having zero magnitude scores 0.
// A length mismatch is a contract violation and returns ErrDimensionMismatch.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cosine: %d vs %d: %w", len(a), len(b), domain.ErrDimensionMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0, nil
	}
	if sim > 1 {
		return 1, nil
	}
	return sim, nil
}

// Candidate is a scored item awaiting ranking.
type Candidate struct {
	Item       domain.SoldItem
	Similarity float64
}

// TopK drops candidates below minScore, sorts the rest by similarity
// descending, and returns at most limit of them.
func TopK(candidates []Candidate, minScore float64, limit int) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= minScore {
			kept = append(kept, c)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Similarity > kept[j].Similarity
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
