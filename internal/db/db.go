// Package db defines the storage contracts the core depends on. Concrete
// backends live in subpackages (redis, s3); consumers depend on the narrow
// interfaces below.
package db

import (
	"context"
	"time"
)

// Item is one stored record: a partition/sort key pair plus a flat
// attribute map. Keys follow the indexkey package's string shapes verbatim;
// range queries rely on lexicographic sort-key ordering.
type Item struct {
	PartitionKey string
	SortKey      string
	Attributes   map[string]string
	// IndexEntries are the secondary-index projections of this item,
	// written alongside the primary record.
	IndexEntries []IndexEntry
	// ExpiresAt, when non-zero, is the TTL deadline enforced by the store.
	ExpiresAt time.Time
}

// IndexEntry projects an item into one secondary index partition.
type IndexEntry struct {
	IndexName    string
	PartitionKey string
	SortKey      string
}

// SortKeyRange bounds a range query. Empty Min or Max leaves that side open.
type SortKeyRange struct {
	Min string
	Max string
}

// DocumentStore is the document/index store contract.
type DocumentStore interface {
	PutItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, partitionKey, sortKey string) (Item, error)
	// QueryIndex returns index projections for one partition of a secondary
	// index, ordered by sort key, optionally bounded by rng.
	QueryIndex(ctx context.Context, indexName, partitionKey string, rng *SortKeyRange, limit int) ([]Item, error)
	// BatchPutItems writes items and reports how many were written.
	BatchPutItems(ctx context.Context, items []Item) (int, error)
}

// BlobStore reads opaque payloads by key. No write path: blob writes happen
// upstream of this core.
type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// RemoteCacheClient is the remote (L2) cache contract. Every error return
// is classifiable by the circuit breaker as a failure; ErrKeyNotFound is a
// miss, not a failure.
type RemoteCacheClient interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
