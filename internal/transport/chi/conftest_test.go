package chi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carousel-labs/pricedex/internal/cache"
	"github.com/carousel-labs/pricedex/internal/domain"
	searchuc "github.com/carousel-labs/pricedex/internal/usecase/search"
)

// mockSearcher implements Searcher with a function field.
type mockSearcher struct {
	fn    func(ctx context.Context, req searchuc.Request) (searchuc.Response, error)
	calls int
}

func (m *mockSearcher) Similar(ctx context.Context, req searchuc.Request) (searchuc.Response, error) {
	m.calls++
	return m.fn(ctx, req)
}

// mockItems implements ItemStore with function fields.
type mockItems struct {
	putFn      func(ctx context.Context, it domain.SoldItem) error
	batchPutFn func(ctx context.Context, items []domain.SoldItem) (int, error)
	getFn      func(ctx context.Context, tenantID, productID string) (domain.SoldItem, error)
}

func (m *mockItems) Put(ctx context.Context, it domain.SoldItem) error {
	if m.putFn != nil {
		return m.putFn(ctx, it)
	}
	return nil
}

func (m *mockItems) BatchPut(ctx context.Context, items []domain.SoldItem) (int, error) {
	if m.batchPutFn != nil {
		return m.batchPutFn(ctx, items)
	}
	return len(items), nil
}

func (m *mockItems) Get(ctx context.Context, tenantID, productID string) (domain.SoldItem, error) {
	if m.getFn != nil {
		return m.getFn(ctx, tenantID, productID)
	}
	return domain.SoldItem{}, domain.ErrItemNotFound
}

// fakeCache is an in-memory ResponseCache.
type fakeCache struct {
	data  map[string][]byte
	stats cache.Stats
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) GetJSON(_ context.Context, key string, out any) (bool, error) {
	raw, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

func (f *fakeCache) Stats() cache.Stats { return f.stats }

// mockPinger implements Pinger.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }
