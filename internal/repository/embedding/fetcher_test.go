package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carousel-labs/pricedex/internal/domain"
)

// mockBlobStore implements db.BlobStore for tests.
type mockBlobStore struct {
	mu    sync.Mutex
	calls map[string]int
	getFn func(key string, attempt int) ([]byte, error)
}

func newMockBlobStore(getFn func(key string, attempt int) ([]byte, error)) *mockBlobStore {
	return &mockBlobStore{calls: make(map[string]int), getFn: getFn}
}

func (m *mockBlobStore) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.calls[key]++
	attempt := m.calls[key]
	m.mu.Unlock()
	return m.getFn(key, attempt)
}

func (m *mockBlobStore) attempts(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func noDelay(_ context.Context, _ time.Duration) error { return nil }

func validPayload(t *testing.T, dim int) []byte {
	t.Helper()
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = float32(i) * 0.01
	}
	data, err := json.Marshal(vec)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func testFetcher(t *testing.T, store *mockBlobStore) *Fetcher {
	t.Helper()
	return New(Config{Dim: 8}, store, zap.NewNop()).WithDelay(noDelay)
}

func makeRefs(n int) []Ref {
	refs := make([]Ref, n)
	for i := range refs {
		refs[i] = Ref{
			ID:  fmt.Sprintf("product-%03d", i),
			Key: fmt.Sprintf("embeddings/product-%03d.json", i),
		}
	}
	return refs
}

func TestFetchBatch_AllSucceed(t *testing.T) {
	payload := validPayload(t, 8)
	store := newMockBlobStore(func(_ string, _ int) ([]byte, error) {
		return payload, nil
	})
	f := testFetcher(t, store)

	vectors, m, err := f.FetchBatch(context.Background(), makeRefs(25))
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 25 {
		t.Errorf("got %d vectors, want 25", len(vectors))
	}
	if m.Requested != 25 || m.Fetched != 25 || m.Failed != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Batches != 3 { // 10 + 10 + 5
		t.Errorf("batches = %d, want 3", m.Batches)
	}
	if want := int64(25 * len(payload)); m.Bytes != want {
		t.Errorf("bytes = %d, want %d", m.Bytes, want)
	}
}

func TestFetchBatch_BatchingArithmetic(t *testing.T) {
	batches := splitBatches(makeRefs(25), 10)
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	want := []int{10, 10, 5}
	if len(sizes) != len(want) {
		t.Fatalf("batch sizes %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("batch sizes %v, want %v", sizes, want)
		}
	}
}

func TestFetchBatch_PartialFailure(t *testing.T) {
	payload := validPayload(t, 8)
	store := newMockBlobStore(func(key string, _ int) ([]byte, error) {
		if key == "embeddings/product-003.json" || key == "embeddings/product-007.json" {
			return nil, errors.New("throttled")
		}
		return payload, nil
	})
	f := testFetcher(t, store)

	vectors, m, err := f.FetchBatch(context.Background(), makeRefs(10))
	if err != nil {
		t.Fatalf("item failures must not fail the batch: %v", err)
	}
	if len(vectors) != 8 {
		t.Errorf("got %d vectors, want 8", len(vectors))
	}
	if _, ok := vectors["product-003"]; ok {
		t.Error("failed item present in result")
	}
	if m.Fetched != 8 || m.Failed != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestFetchBatch_RetriesThenSucceeds(t *testing.T) {
	payload := validPayload(t, 8)
	store := newMockBlobStore(func(_ string, attempt int) ([]byte, error) {
		if attempt < 3 {
			return nil, errors.New("flaky")
		}
		return payload, nil
	})

	var mu sync.Mutex
	var delays []time.Duration
	f := New(Config{Dim: 8}, store, zap.NewNop()).WithDelay(
		func(_ context.Context, d time.Duration) error {
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
			return nil
		})

	vectors, m, err := f.FetchBatch(context.Background(), makeRefs(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 || m.Failed != 0 {
		t.Fatalf("vectors=%d metrics=%+v", len(vectors), m)
	}
	if store.attempts("embeddings/product-000.json") != 3 {
		t.Errorf("attempts = %d, want 3", store.attempts("embeddings/product-000.json"))
	}
	// Exponential backoff: 100ms then 200ms.
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Errorf("delays = %v", delays)
	}
}

func TestFetchBatch_GivesUpAfterMaxAttempts(t *testing.T) {
	store := newMockBlobStore(func(_ string, _ int) ([]byte, error) {
		return nil, errors.New("down")
	})
	f := testFetcher(t, store)

	vectors, m, err := f.FetchBatch(context.Background(), makeRefs(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 0 || m.Failed != 1 {
		t.Errorf("vectors=%d metrics=%+v", len(vectors), m)
	}
	if store.attempts("embeddings/product-000.json") != 3 {
		t.Errorf("attempts = %d, want 3 (bounded retry)", store.attempts("embeddings/product-000.json"))
	}
}

func TestFetchBatch_MalformedPayloadIsFailureNotError(t *testing.T) {
	payloads := map[string][]byte{
		"embeddings/product-000.json": []byte("not json"),
		"embeddings/product-001.json": []byte(`[1, 2, 3]`), // wrong dimension
		"embeddings/product-002.json": validPayload(t, 8),
	}
	store := newMockBlobStore(func(key string, _ int) ([]byte, error) {
		return payloads[key], nil
	})
	f := testFetcher(t, store)

	vectors, m, err := f.FetchBatch(context.Background(), makeRefs(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 {
		t.Errorf("got %d vectors, want 1", len(vectors))
	}
	if m.Failed != 2 {
		t.Errorf("failed = %d, want 2", m.Failed)
	}
}

func TestFetchBatch_EmptyInput(t *testing.T) {
	store := newMockBlobStore(func(_ string, _ int) ([]byte, error) {
		t.Fatal("store must not be called")
		return nil, nil
	})
	f := testFetcher(t, store)

	vectors, m, err := f.FetchBatch(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 0 || m.Requested != 0 || m.Batches != 0 {
		t.Errorf("vectors=%d metrics=%+v", len(vectors), m)
	}
}

func TestFetchBatch_ContextCancelled(t *testing.T) {
	payload := validPayload(t, domain.EmbeddingDim)
	store := newMockBlobStore(func(_ string, _ int) ([]byte, error) {
		return payload, nil
	})
	f := New(Config{}, store, zap.NewNop()).WithDelay(noDelay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancelled context: batches that never acquire the semaphore are
	// counted failed, nothing panics, no hard error.
	_, m, err := f.FetchBatch(ctx, makeRefs(100))
	if err != nil {
		t.Fatal(err)
	}
	if m.Fetched+m.Failed != m.Requested {
		t.Errorf("metrics don't account for every item: %+v", m)
	}
}
