package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/carousel-labs/pricedex/internal/db"
)

func (s *Store) cacheKey(namespace, key string) string {
	return s.prefix + "cache:" + namespace + ":" + key
}

// Get retrieves a cached value. A missing key is db.ErrKeyNotFound, which
// the circuit breaker classifies as a miss rather than a failure.
func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	cmd := s.b().Get().Key(s.cacheKey(namespace, key)).Build()
	data, err := s.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrKeyNotFound
		}
		return nil, &db.Error{Op: db.OpCacheGet, Err: err}
	}
	return data, nil
}

// Set stores a cached value with an expiration.
func (s *Store) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	cmd := s.b().Set().Key(s.cacheKey(namespace, key)).Value(string(value)).Ex(ttl).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpCacheSet, Err: err}
	}
	return nil
}

// Delete removes a cached value.
func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	cmd := s.b().Del().Key(s.cacheKey(namespace, key)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpCacheDel, Err: err}
	}
	return nil
}
