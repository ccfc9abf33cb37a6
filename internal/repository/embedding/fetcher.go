// Package embedding fetches embedding vectors from blob storage in bounded,
// retried batches. The fetcher never fails the whole operation because
// individual items failed: it returns the successful id→vector subset and
// exposes counters for the rest. Callers proceed with what succeeded.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/carousel-labs/pricedex/internal/db"
	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/metrics"
)

// Defaults per batch-fetch tuning: ≤5 batches of 10 in flight means at most
// 50 concurrent blob reads.
const (
	DefaultBatchSize      = 10
	DefaultMaxConcurrency = 5
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 100 * time.Millisecond
)

// Ref pairs an item id with its blob key.
type Ref struct {
	ID  string
	Key string
}

// Metrics summarizes one fetch run. Counter fields are updated atomically
// from concurrent batch workers.
type Metrics struct {
	Requested int64
	Fetched   int64
	Failed    int64
	Bytes     int64
	Batches   int64
	Duration  time.Duration
}

// DelayFunc schedules a retry backoff. It returns early with the context's
// error when ctx is done. Injectable so tests run without real sleeps.
type DelayFunc func(ctx context.Context, d time.Duration) error

func sleepDelay(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config holds fetcher tuning.
type Config struct {
	BatchSize      int
	MaxConcurrency int
	MaxAttempts    int
	BaseDelay      time.Duration
	// Dim is the expected vector dimensionality; payloads of any other
	// length are treated as fetch failures.
	Dim int
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.Dim <= 0 {
		c.Dim = domain.EmbeddingDim
	}
}

// Fetcher retrieves embedding blobs with bounded concurrency.
type Fetcher struct {
	cfg    Config
	blobs  db.BlobStore
	delay  DelayFunc
	logger *zap.Logger
}

// New creates a fetcher over the given blob store.
func New(cfg Config, blobs db.BlobStore, logger *zap.Logger) *Fetcher {
	cfg.ApplyDefaults()
	return &Fetcher{cfg: cfg, blobs: blobs, delay: sleepDelay, logger: logger}
}

// WithDelay overrides the backoff scheduler. Intended for tests.
func (f *Fetcher) WithDelay(d DelayFunc) *Fetcher {
	f.delay = d
	return f
}

// FetchBatch retrieves vectors for refs. The returned map holds only the
// ids whose blob was fetched and decoded; everything else lands in the
// Failed counter. FetchBatch itself errors only on invalid input.
func (f *Fetcher) FetchBatch(ctx context.Context, refs []Ref) (map[string][]float32, Metrics, error) {
	start := time.Now()
	m := Metrics{Requested: int64(len(refs))}
	if len(refs) == 0 {
		return map[string][]float32{}, m, nil
	}

	batches := splitBatches(refs, f.cfg.BatchSize)
	m.Batches = int64(len(batches))

	var mu sync.Mutex
	vectors := make(map[string][]float32, len(refs))

	sem := semaphore.NewWeighted(int64(f.cfg.MaxConcurrency))
	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []Ref) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				atomic.AddInt64(&m.Failed, int64(len(batch)))
				return
			}
			defer sem.Release(1)

			for _, ref := range batch {
				vec, n, err := f.fetchOne(ctx, ref)
				if err != nil {
					atomic.AddInt64(&m.Failed, 1)
					metrics.BlobFetchesTotal.WithLabelValues("failed").Inc()
					f.logger.Warn("Embedding fetch failed",
						zap.String("id", ref.ID), zap.String("key", ref.Key), zap.Error(err))
					continue
				}
				atomic.AddInt64(&m.Fetched, 1)
				atomic.AddInt64(&m.Bytes, int64(n))
				metrics.BlobFetchesTotal.WithLabelValues("ok").Inc()
				metrics.BlobFetchBytes.Add(float64(n))
				mu.Lock()
				vectors[ref.ID] = vec
				mu.Unlock()
			}
		}(batch)
	}
	wg.Wait()

	m.Duration = time.Since(start)
	return vectors, m, nil
}

// fetchOne retries transient failures with exponential backoff, then
// decodes and validates the payload. A malformed payload is a failure of
// this item, not a panic-worthy event.
func (f *Fetcher) fetchOne(ctx context.Context, ref Ref) ([]float32, int, error) {
	var data []byte
	var err error

	delay := f.cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		data, err = f.blobs.GetObject(ctx, ref.Key)
		if err == nil {
			break
		}
		if attempt >= f.cfg.MaxAttempts {
			return nil, 0, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		if derr := f.delay(ctx, delay); derr != nil {
			return nil, 0, derr
		}
		delay *= 2
	}

	vec, err := decodeVector(data, f.cfg.Dim)
	if err != nil {
		return nil, 0, err
	}
	return vec, len(data), nil
}

// decodeVector parses a JSON numeric array of exactly dim elements.
func decodeVector(data []byte, dim int) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("malformed embedding payload: %w", err)
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), dim)
	}
	return vec, nil
}

// splitBatches chops refs into fixed-size chunks; the last one may be short.
func splitBatches(refs []Ref, size int) [][]Ref {
	var batches [][]Ref
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}
