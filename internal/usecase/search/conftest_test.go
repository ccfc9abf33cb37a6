package search

import (
	"context"

	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/repository/embedding"
)

// mockFinder implements CandidateFinder with a function field.
type mockFinder struct {
	fn func(ctx context.Context, tenantID string, f domain.CandidateFilter, limit int) (domain.CandidateSet, error)

	gotTenant string
	gotFilter domain.CandidateFilter
	gotLimit  int
	calls     int
}

func (m *mockFinder) FindCandidates(ctx context.Context, tenantID string, f domain.CandidateFilter, limit int) (domain.CandidateSet, error) {
	m.calls++
	m.gotTenant = tenantID
	m.gotFilter = f
	m.gotLimit = limit
	return m.fn(ctx, tenantID, f, limit)
}

// mockFetcher implements VectorFetcher with a function field.
type mockFetcher struct {
	fn func(ctx context.Context, refs []embedding.Ref) (map[string][]float32, embedding.Metrics, error)

	gotRefs []embedding.Ref
	calls   int
}

func (m *mockFetcher) FetchBatch(ctx context.Context, refs []embedding.Ref) (map[string][]float32, embedding.Metrics, error) {
	m.calls++
	m.gotRefs = refs
	return m.fn(ctx, refs)
}
