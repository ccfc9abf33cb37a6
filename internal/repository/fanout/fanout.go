// Package fanout issues one range query per shard of a secondary index,
// concurrently, and merges the results. A failing shard never aborts its
// siblings: the fanout waits for every shard, returns whatever succeeded,
// and records which shards failed. Only all shards failing is a hard error.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/db"
)

// querier is the consumer slice of db.DocumentStore used here.
type querier interface {
	QueryIndex(ctx context.Context, indexName, partitionKey string, rng *db.SortKeyRange, limit int) ([]db.Item, error)
}

// Query describes one fan-out: an index, a per-shard partition key, an
// optional sort-key range, and an optional post-filter applied after the
// merge (for predicates the key cannot express, e.g. season).
type Query struct {
	IndexName string
	// PartitionKey builds the partition key for one shard.
	PartitionKey func(shard int) (string, error)
	Shards       int
	Range        *db.SortKeyRange
	// PerShardLimit caps each shard's result count.
	PerShardLimit int
	// PostFilter keeps an item when it returns true. Applied merge-then-filter.
	PostFilter func(db.Item) bool
}

// Result carries the merged items plus the failure record.
type Result struct {
	Items []db.Item
	// FailedShards lists shards whose query failed; results are partial
	// when it is non-empty.
	FailedShards []int
}

// Degraded reports whether any shard failed.
func (r Result) Degraded() bool { return len(r.FailedShards) > 0 }

// Fanout runs sharded index queries.
type Fanout struct {
	store  querier
	logger *zap.Logger
}

// New creates a fanout over the given store.
func New(store querier, logger *zap.Logger) *Fanout {
	return &Fanout{store: store, logger: logger}
}

// Run queries every shard concurrently and merges results in shard order.
// Wait-for-all semantics: a slow or failing shard never cancels siblings.
func (f *Fanout) Run(ctx context.Context, q Query) (Result, error) {
	if q.Shards <= 0 {
		return Result{}, fmt.Errorf("fanout: shard count %d", q.Shards)
	}

	type shardOutcome struct {
		items []db.Item
		err   error
	}
	outcomes := make([]shardOutcome, q.Shards)

	var wg sync.WaitGroup
	for shard := 0; shard < q.Shards; shard++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			pk, err := q.PartitionKey(shard)
			if err != nil {
				outcomes[shard].err = err
				return
			}
			items, err := f.store.QueryIndex(ctx, q.IndexName, pk, q.Range, q.PerShardLimit)
			if err != nil {
				outcomes[shard].err = err
				return
			}
			outcomes[shard].items = items
		}(shard)
	}
	wg.Wait()

	var res Result
	var errs []error
	for shard, out := range outcomes {
		if out.err != nil {
			res.FailedShards = append(res.FailedShards, shard)
			errs = append(errs, fmt.Errorf("shard %d: %w", shard, out.err))
			continue
		}
		res.Items = append(res.Items, out.items...)
	}

	if len(res.FailedShards) == q.Shards {
		return res, fmt.Errorf("all %d shards failed: %w", q.Shards, errors.Join(errs...))
	}
	if len(res.FailedShards) > 0 {
		f.logger.Warn("Partial fanout result",
			zap.String("index", q.IndexName),
			zap.Ints("failed_shards", res.FailedShards),
			zap.Int("items", len(res.Items)),
		)
	}

	if q.PostFilter != nil {
		kept := res.Items[:0]
		for _, it := range res.Items {
			if q.PostFilter(it) {
				kept = append(kept, it)
			}
		}
		res.Items = kept
	}

	return res, nil
}
