package cache

import (
	"context"
	"sync"
	"time"

	"github.com/carousel-labs/pricedex/internal/db"
)

// mockRemote implements db.RemoteCacheClient for tests.
type mockRemote struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
	dels   int
	setCh  chan struct{} // closed-loop signal per Set, if non-nil
}

func newMockRemote() *mockRemote {
	return &mockRemote{data: make(map[string][]byte)}
}

func (m *mockRemote) key(ns, key string) string { return ns + ":" + key }

func (m *mockRemote) Get(_ context.Context, ns, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[m.key(ns, key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockRemote) Set(_ context.Context, ns, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	m.sets++
	err := m.setErr
	if err == nil {
		m.data[m.key(ns, key)] = value
	}
	ch := m.setCh
	m.mu.Unlock()
	if ch != nil {
		ch <- struct{}{}
	}
	return err
}

func (m *mockRemote) Delete(_ context.Context, ns, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dels++
	delete(m.data, m.key(ns, key))
	return nil
}
