package search

import (
	"context"

	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/repository/embedding"
)

// CandidateFinder selects candidate items from the sharded embedding index.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, tenantID string, f domain.CandidateFilter, limit int) (domain.CandidateSet, error)
}

// VectorFetcher retrieves embedding vectors for a shortlist of candidates.
type VectorFetcher interface {
	FetchBatch(ctx context.Context, refs []embedding.Ref) (map[string][]float32, embedding.Metrics, error)
}
