package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/carousel-labs/pricedex/internal/db"
)

// Key layout:
//
//	{prefix}item:{pk}|{sk}            hash of item attributes
//	{prefix}idx:{index}:{pk}          sorted set of sort keys (score 0, lex order)
//	{prefix}idxdoc:{index}:{pk}|{sk}  hash projection of the item into the index
//
// TTL is set on the hashes only; expired sorted-set members are pruned
// lazily when a query finds their projection gone.

func (s *Store) itemKey(pk, sk string) string {
	return s.prefix + "item:" + pk + "|" + sk
}

func (s *Store) indexKey(index, pk string) string {
	return s.prefix + "idx:" + index + ":" + pk
}

func (s *Store) indexDocKey(index, pk, sk string) string {
	return s.prefix + "idxdoc:" + index + ":" + pk + "|" + sk
}

// PutItem writes the primary record and every index projection.
func (s *Store) PutItem(ctx context.Context, item db.Item) error {
	cmds := s.putCmds(item)
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpPutItem, Err: err}
		}
	}
	return nil
}

// GetItem reads one primary record.
func (s *Store) GetItem(ctx context.Context, partitionKey, sortKey string) (db.Item, error) {
	cmd := s.b().Hgetall().Key(s.itemKey(partitionKey, sortKey)).Build()
	attrs, err := s.do(ctx, cmd).AsStrMap()
	if err != nil {
		return db.Item{}, &db.Error{Op: db.OpGetItem, Err: err}
	}
	if len(attrs) == 0 {
		return db.Item{}, db.ErrKeyNotFound
	}
	return db.Item{
		PartitionKey: partitionKey,
		SortKey:      sortKey,
		Attributes:   attrs,
	}, nil
}

// QueryIndex range-scans one index partition by lexicographic sort-key
// order and resolves each member to its projection hash.
func (s *Store) QueryIndex(
	ctx context.Context, indexName, partitionKey string, rng *db.SortKeyRange, limit int,
) ([]db.Item, error) {
	minArg, maxArg := "-", "+"
	if rng != nil {
		if rng.Min != "" {
			minArg = "[" + rng.Min
		}
		if rng.Max != "" {
			// \xff extends the inclusive bound past any suffix of Max.
			maxArg = "[" + rng.Max + "\xff"
		}
	}
	if limit <= 0 {
		limit = 1000
	}

	zkey := s.indexKey(indexName, partitionKey)
	cmd := s.b().Zrange().Key(zkey).Min(minArg).Max(maxArg).Bylex().
		Limit(0, int64(limit)).Build()
	members, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpQueryIndex, Err: err}
	}
	if len(members) == 0 {
		return nil, nil
	}

	gets := make([]rueidis.Completed, len(members))
	for i, sk := range members {
		gets[i] = s.b().Hgetall().Key(s.indexDocKey(indexName, partitionKey, sk)).Build()
	}

	items := make([]db.Item, 0, len(members))
	var stale []string
	for i, res := range s.client.DoMulti(ctx, gets...) {
		attrs, err := res.AsStrMap()
		if err != nil {
			return nil, &db.Error{Op: db.OpQueryIndex, Err: err}
		}
		if len(attrs) == 0 {
			// Projection hash expired; the member outlived it.
			stale = append(stale, members[i])
			continue
		}
		items = append(items, db.Item{
			PartitionKey: partitionKey,
			SortKey:      members[i],
			Attributes:   attrs,
		})
	}

	if len(stale) > 0 {
		cmd := s.b().Zrem().Key(zkey).Member(stale...).Build()
		// Pruning is best-effort; the next query retries it.
		_ = s.do(ctx, cmd).Error()
	}

	return items, nil
}

// BatchPutItems writes items in a single pipelined round-trip. Individual
// item failures do not abort the batch; the count of fully written items is
// returned alongside any accumulated errors.
func (s *Store) BatchPutItems(ctx context.Context, items []db.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	var cmds []rueidis.Completed
	spans := make([][2]int, len(items)) // command range per item
	for i, item := range items {
		start := len(cmds)
		cmds = append(cmds, s.putCmds(item)...)
		spans[i] = [2]int{start, len(cmds)}
	}

	results := s.client.DoMulti(ctx, cmds...)

	written := 0
	var errs []error
	for i := range items {
		ok := true
		for _, res := range results[spans[i][0]:spans[i][1]] {
			if err := res.Error(); err != nil {
				ok = false
				errs = append(errs, fmt.Errorf("item %s|%s: %w",
					items[i].PartitionKey, items[i].SortKey, err))
				break
			}
		}
		if ok {
			written++
		}
	}

	if len(errs) > 0 {
		return written, &db.Error{Op: db.OpBatchPut, Err: errors.Join(errs...)}
	}
	return written, nil
}

// putCmds builds the command sequence for one item: primary hash, index
// member + projection per entry, and TTLs when the item expires.
func (s *Store) putCmds(item db.Item) []rueidis.Completed {
	var cmds []rueidis.Completed

	primary := s.itemKey(item.PartitionKey, item.SortKey)
	cmds = append(cmds, s.hsetCmd(primary, item.Attributes))
	if !item.ExpiresAt.IsZero() {
		cmds = append(cmds, s.b().Expireat().Key(primary).Timestamp(item.ExpiresAt.Unix()).Build())
	}

	for _, e := range item.IndexEntries {
		cmds = append(cmds,
			s.b().Zadd().Key(s.indexKey(e.IndexName, e.PartitionKey)).
				ScoreMember().ScoreMember(0, e.SortKey).Build())
		docKey := s.indexDocKey(e.IndexName, e.PartitionKey, e.SortKey)
		cmds = append(cmds, s.hsetCmd(docKey, item.Attributes))
		if !item.ExpiresAt.IsZero() {
			cmds = append(cmds, s.b().Expireat().Key(docKey).Timestamp(item.ExpiresAt.Unix()).Build())
		}
	}
	return cmds
}

func (s *Store) hsetCmd(key string, fields map[string]string) rueidis.Completed {
	cmd := s.b().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	return cmd.Build()
}
