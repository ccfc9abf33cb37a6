package item

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carousel-labs/pricedex/internal/db"
	"github.com/carousel-labs/pricedex/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	putFn      func(ctx context.Context, item db.Item) error
	getFn      func(ctx context.Context, pk, sk string) (db.Item, error)
	batchPutFn func(ctx context.Context, items []db.Item) (int, error)
	lastPut    db.Item
}

func (m *mockStore) PutItem(ctx context.Context, item db.Item) error {
	m.lastPut = item
	if m.putFn != nil {
		return m.putFn(ctx, item)
	}
	return nil
}

func (m *mockStore) GetItem(ctx context.Context, pk, sk string) (db.Item, error) {
	if m.getFn != nil {
		return m.getFn(ctx, pk, sk)
	}
	return db.Item{}, db.ErrKeyNotFound
}

func (m *mockStore) BatchPutItems(ctx context.Context, items []db.Item) (int, error) {
	if m.batchPutFn != nil {
		return m.batchPutFn(ctx, items)
	}
	return len(items), nil
}

func testItem() domain.SoldItem {
	return domain.SoldItem{
		TenantID:     "carousel-labs",
		ProductID:    "product-000042",
		SellerID:     "seller-9f3a",
		SoldDate:     "2025-12-29",
		PriceCents:   9999,
		Category:     "handbags",
		Brand:        "Prada",
		Season:       "Q4",
		EmbeddingKey: "embeddings/product-000042.json",
	}
}

func TestPut_DerivesKeys(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, 730*24*time.Hour)

	if err := repo.Put(context.Background(), testItem()); err != nil {
		t.Fatal(err)
	}

	rec := ms.lastPut
	if rec.PartitionKey != "TENANT#carousel-labs#PRODUCT#product-000042" {
		t.Errorf("primary pk = %q", rec.PartitionKey)
	}
	if rec.SortKey != "ITEM" {
		t.Errorf("primary sk = %q", rec.SortKey)
	}
	if len(rec.IndexEntries) != 2 {
		t.Fatalf("index entries = %d, want 2", len(rec.IndexEntries))
	}

	cat := rec.IndexEntries[0]
	if cat.IndexName != CategoryIndex {
		t.Errorf("index name = %q", cat.IndexName)
	}
	// seller-9f3a: last char 'a' = 97, shard 7.
	if cat.PartitionKey != "TENANT#carousel-labs#CATEGORY#handbags#SHARD#7" {
		t.Errorf("category pk = %q", cat.PartitionKey)
	}
	if !strings.HasPrefix(cat.SortKey, "DATE#2025-12-29#PRICE#0000009999") {
		t.Errorf("category sk = %q", cat.SortKey)
	}

	emb := rec.IndexEntries[1]
	if emb.IndexName != EmbeddingIndex {
		t.Errorf("index name = %q", emb.IndexName)
	}
	if !strings.HasPrefix(emb.PartitionKey, "TENANT#carousel-labs#EMBTYPE#titan-v2#SHARD#") {
		t.Errorf("embedding pk = %q", emb.PartitionKey)
	}
	if !strings.HasPrefix(emb.SortKey, "DATE#2025-12-29") {
		t.Errorf("embedding sk = %q", emb.SortKey)
	}

	wantExpiry := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC).Add(730 * 24 * time.Hour)
	if !rec.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want %v", rec.ExpiresAt, wantExpiry)
	}
}

func TestPut_ShardIsPureFunctionOfSellerID(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, 0)

	it := testItem()
	if err := repo.Put(context.Background(), it); err != nil {
		t.Fatal(err)
	}
	first := ms.lastPut.IndexEntries[0].PartitionKey

	// Mutating price, date, and category must not move the item to
	// another shard; only the key's category segment changes.
	it.PriceCents = 123456
	it.SoldDate = "2024-01-01"
	if err := repo.Put(context.Background(), it); err != nil {
		t.Fatal(err)
	}
	second := ms.lastPut.IndexEntries[0].PartitionKey

	if first != second {
		t.Errorf("shard moved with mutable fields: %q vs %q", first, second)
	}
}

func TestPut_InvalidItem(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, 0)

	tests := []struct {
		name   string
		mutate func(*domain.SoldItem)
	}{
		{"missing seller", func(it *domain.SoldItem) { it.SellerID = "" }},
		{"bad date", func(it *domain.SoldItem) { it.SoldDate = "2025-02-31" }},
		{"negative price", func(it *domain.SoldItem) { it.PriceCents = -5 }},
		{"missing category", func(it *domain.SoldItem) { it.Category = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			it := testItem()
			tc.mutate(&it)
			if err := repo.Put(context.Background(), it); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBatchPut_SkipsInvalidAndCounts(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, 0)

	bad := testItem()
	bad.SoldDate = "2025-13-01"
	items := []domain.SoldItem{testItem(), bad, testItem()}

	written, err := repo.BatchPut(context.Background(), items)
	if err != nil {
		t.Fatal(err)
	}
	if written != 2 {
		t.Errorf("written = %d, want 2 (invalid item skipped)", written)
	}
}

func TestGet_RoundTrip(t *testing.T) {
	want := testItem()
	ms := &mockStore{getFn: func(_ context.Context, pk, sk string) (db.Item, error) {
		if pk != "TENANT#carousel-labs#PRODUCT#product-000042" || sk != "ITEM" {
			return db.Item{}, db.ErrKeyNotFound
		}
		return db.Item{Attributes: ToAttributes(want, 7, 2)}, nil
	}}
	repo := New(ms, 0)

	got, err := repo.Get(context.Background(), "carousel-labs", "product-000042")
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(&mockStore{}, 0)

	_, err := repo.Get(context.Background(), "carousel-labs", "nope")
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
