// Package search selects candidate items from the sharded embedding index.
// It is phase one of the two-phase search: cheap metadata first, expensive
// embedding payloads only for the shortlist.
package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/db"
	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/domain/indexkey"
	"github.com/carousel-labs/pricedex/internal/domain/shard"
	"github.com/carousel-labs/pricedex/internal/repository/fanout"
	"github.com/carousel-labs/pricedex/internal/repository/item"
)

// querier is the consumer slice of db.DocumentStore used here.
type querier interface {
	QueryIndex(ctx context.Context, indexName, partitionKey string, rng *db.SortKeyRange, limit int) ([]db.Item, error)
}

// Repo finds candidates via sharded fanout over the embedding index.
type Repo struct {
	fan *fanout.Fanout
}

// New creates a candidate repository.
func New(store querier, logger *zap.Logger) *Repo {
	return &Repo{fan: fanout.New(store, logger)}
}

// FindCandidates queries every embedding shard for the date window and
// returns up to limit merged candidates. The set is marked degraded when
// some shards failed; only all shards failing is an error.
func (r *Repo) FindCandidates(ctx context.Context, tenantID string, f domain.CandidateFilter, limit int) (domain.CandidateSet, error) {
	fromSK, err := indexkey.DateSK(f.From)
	if err != nil {
		return domain.CandidateSet{}, err
	}
	toSK, err := indexkey.DateSK(f.To)
	if err != nil {
		return domain.CandidateSet{}, err
	}

	q := fanout.Query{
		IndexName: item.EmbeddingIndex,
		PartitionKey: func(n int) (string, error) {
			return indexkey.EmbeddingPK(tenantID, domain.EmbeddingType, n)
		},
		Shards:        shard.EmbeddingShards,
		Range:         &db.SortKeyRange{Min: fromSK, Max: toSK},
		PerShardLimit: limit,
		PostFilter: func(it db.Item) bool {
			if f.Category != "" && it.Attributes["category"] != f.Category {
				return false
			}
			if f.Season != "" && it.Attributes["season"] != f.Season {
				return false
			}
			return true
		},
	}

	res, err := r.fan.Run(ctx, q)
	if err != nil {
		return domain.CandidateSet{}, err
	}

	items := make([]domain.SoldItem, 0, len(res.Items))
	for _, rec := range res.Items {
		items = append(items, item.FromAttributes(rec.Attributes))
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return domain.CandidateSet{Items: items, Degraded: res.Degraded()}, nil
}
