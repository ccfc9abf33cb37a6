// Package cache provides a two-level cache: an in-process L1 map in front
// of a remote L2 store guarded by a circuit breaker. L2 trouble of any kind
// (open circuit, network failure) degrades to a cache miss; it is never
// surfaced to the caller as an error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/breaker"
	"github.com/carousel-labs/pricedex/internal/db"
	"github.com/carousel-labs/pricedex/internal/metrics"
)

// hitBonus is the age forgiveness one recorded hit buys at eviction time.
const hitBonus = time.Minute

const (
	maxKeyLen = 256
)

// Config holds tiered cache settings.
type Config struct {
	// Namespace scopes keys in the remote store.
	Namespace string
	// MaxEntries caps the L1 map; inserting beyond it evicts one entry.
	MaxEntries int
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration
	// L2WriteTimeout bounds each fire-and-forget remote write.
	L2WriteTimeout time.Duration
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 5 * time.Minute
	}
	if c.L2WriteTimeout <= 0 {
		c.L2WriteTimeout = 2 * time.Second
	}
}

type entry struct {
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
	hits       int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries        int
	L1Hits         int64
	L2Hits         int64
	Misses         int64
	Evictions      int64
	L2WriteOK      int64
	L2WriteErrors  int64
	L2WriteSkipped int64
}

// TieredCache memoizes computed values across L1 (in-process) and L2
// (remote). Safe for concurrent use.
type TieredCache struct {
	cfg    Config
	remote db.RemoteCacheClient
	brk    *breaker.Breaker
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats

	l2wg sync.WaitGroup
}

// New creates a tiered cache. remote may be nil, which disables L2.
func New(cfg Config, remote db.RemoteCacheClient, brk *breaker.Breaker, logger *zap.Logger) *TieredCache {
	cfg.ApplyDefaults()
	return &TieredCache{
		cfg:     cfg,
		remote:  remote,
		brk:     brk,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// WithClock overrides the time source. Intended for tests.
func (t *TieredCache) WithClock(now func() time.Time) *TieredCache {
	t.now = now
	return t
}

// Get returns the cached value for key, or ok=false on a miss. L1 is
// consulted first; on a miss, L2 is tried only when the breaker admits the
// call, and an L2 hit backfills L1.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	if e, ok := t.entries[key]; ok {
		if t.now().Sub(e.insertedAt) < e.ttl {
			e.hits++
			t.stats.L1Hits++
			val := e.value
			t.mu.Unlock()
			metrics.CacheRequestsTotal.WithLabelValues("l1_hit").Inc()
			return val, true, nil
		}
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if val, ok := t.getL2(ctx, key); ok {
		t.mu.Lock()
		t.stats.L2Hits++
		t.storeL1(key, val, t.cfg.DefaultTTL)
		t.mu.Unlock()
		metrics.CacheRequestsTotal.WithLabelValues("l2_hit").Inc()
		return val, true, nil
	}

	t.mu.Lock()
	t.stats.Misses++
	t.mu.Unlock()
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	return nil, false, nil
}

// GetJSON is Get with JSON decoding into out.
func (t *TieredCache) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	data, ok, err := t.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A corrupt entry behaves like a miss; the caller recomputes.
		t.logger.Warn("Corrupt cache entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Set writes to L1 synchronously and schedules a fire-and-forget L2 write.
// The call returns without waiting for L2; completion is observable via
// Stats counters and Flush.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = t.cfg.DefaultTTL
	}

	t.mu.Lock()
	t.storeL1(key, value, ttl)
	t.mu.Unlock()

	t.scheduleL2Write(key, value, ttl)
	return nil
}

// SetJSON is Set with JSON encoding.
func (t *TieredCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	return t.Set(ctx, key, data, ttl)
}

// Delete removes key from L1 and, breaker permitting, from L2.
func (t *TieredCache) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()

	if t.remote == nil || !t.brk.Allow() {
		return nil
	}
	if err := t.remote.Delete(ctx, t.cfg.Namespace, key); err != nil {
		t.brk.RecordFailure()
		t.logger.Warn("L2 cache delete failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	t.brk.RecordSuccess()
	return nil
}

// Flush waits for all in-flight L2 writes. Used at shutdown.
func (t *TieredCache) Flush() {
	t.l2wg.Wait()
}

// Stats returns a snapshot of the cache counters.
func (t *TieredCache) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Entries = len(t.entries)
	return s
}

// storeL1 inserts under t.mu, evicting the lowest-scored entry when full.
func (t *TieredCache) storeL1(key string, value []byte, ttl time.Duration) {
	if _, exists := t.entries[key]; !exists && len(t.entries) >= t.cfg.MaxEntries {
		t.evictOne()
	}
	t.entries[key] = &entry{value: value, insertedAt: t.now(), ttl: ttl}
}

// evictOne removes the entry with the greatest effective age, where
// effective age = age − hits×hitBonus. Each recorded hit buys a minute of
// age forgiveness, so frequently hit entries resist eviction even when old.
func (t *TieredCache) evictOne() {
	var victim string
	var worst int64
	first := true
	now := t.now()
	for k, e := range t.entries {
		score := now.Sub(e.insertedAt).Milliseconds() - e.hits*hitBonus.Milliseconds()
		if first || score > worst {
			first = false
			worst = score
			victim = k
		}
	}
	if victim != "" {
		delete(t.entries, victim)
		t.stats.Evictions++
		metrics.CacheEvictionsTotal.Inc()
	}
}

func (t *TieredCache) getL2(ctx context.Context, key string) ([]byte, bool) {
	if t.remote == nil {
		return nil, false
	}
	if !t.brk.Allow() {
		return nil, false
	}

	data, err := t.remote.Get(ctx, t.cfg.Namespace, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			t.brk.RecordSuccess()
			return nil, false
		}
		t.brk.RecordFailure()
		t.logger.Warn("L2 cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	t.brk.RecordSuccess()
	return data, true
}

func (t *TieredCache) scheduleL2Write(key string, value []byte, ttl time.Duration) {
	if t.remote == nil {
		return
	}
	if !t.brk.Allow() {
		t.mu.Lock()
		t.stats.L2WriteSkipped++
		t.mu.Unlock()
		metrics.CacheL2WritesTotal.WithLabelValues("rejected").Inc()
		return
	}

	t.l2wg.Add(1)
	go func() {
		defer t.l2wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.L2WriteTimeout)
		defer cancel()

		err := t.remote.Set(ctx, t.cfg.Namespace, key, value, ttl)
		t.mu.Lock()
		if err != nil {
			t.stats.L2WriteErrors++
		} else {
			t.stats.L2WriteOK++
		}
		t.mu.Unlock()

		if err != nil {
			t.brk.RecordFailure()
			metrics.CacheL2WritesTotal.WithLabelValues("error").Inc()
			t.logger.Warn("L2 cache write failed", zap.String("key", key), zap.Error(err))
			return
		}
		t.brk.RecordSuccess()
		metrics.CacheL2WritesTotal.WithLabelValues("ok").Inc()
	}()
}
