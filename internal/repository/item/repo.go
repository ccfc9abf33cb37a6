// Package item persists sold items with their derived shard and index keys.
// Derived keys are computed once at write time, from immutable ids only, so
// re-deriving them later always reproduces the same placement.
package item

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/carousel-labs/pricedex/internal/db"
	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/domain/indexkey"
	"github.com/carousel-labs/pricedex/internal/domain/shard"
)

// Secondary index names. The category index sorts by date+price; the
// embedding index sorts by date and feeds candidate selection for vector
// search.
const (
	CategoryIndex  = "gsi1-category"
	EmbeddingIndex = "gsi2-embedding"
)

const itemSortKey = "ITEM"

// store is the consumer slice of db.DocumentStore used here.
type store interface {
	PutItem(ctx context.Context, item db.Item) error
	GetItem(ctx context.Context, partitionKey, sortKey string) (db.Item, error)
	BatchPutItems(ctx context.Context, items []db.Item) (int, error)
}

// Repo writes and reads sold items.
type Repo struct {
	store     store
	retention time.Duration
}

// New creates an item repository. retention bounds how long an item lives
// before the store purges it (TTL), measured from its sold date.
func New(s store, retention time.Duration) *Repo {
	return &Repo{store: s, retention: retention}
}

// Put validates the item, derives its keys, and writes the primary record
// plus both index projections.
func (r *Repo) Put(ctx context.Context, it domain.SoldItem) error {
	rec, err := r.toRecord(it)
	if err != nil {
		return err
	}
	if err := r.store.PutItem(ctx, rec); err != nil {
		return fmt.Errorf("put item %s: %w", it.ProductID, err)
	}
	return nil
}

// BatchPut writes items in one store round-trip and reports how many were
// written. Items that fail validation are skipped and counted against the
// written total; storage errors for individual items are absorbed the same
// way (batch writes never throw for one bad item).
func (r *Repo) BatchPut(ctx context.Context, items []domain.SoldItem) (int, error) {
	records := make([]db.Item, 0, len(items))
	for _, it := range items {
		rec, err := r.toRecord(it)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return 0, nil
	}

	written, err := r.store.BatchPutItems(ctx, records)
	if err != nil && written == 0 {
		return 0, fmt.Errorf("batch put: %w", err)
	}
	return written, nil
}

// Get reads one item by tenant and product id.
func (r *Repo) Get(ctx context.Context, tenantID, productID string) (domain.SoldItem, error) {
	rec, err := r.store.GetItem(ctx, primaryPK(tenantID, productID), itemSortKey)
	if err != nil {
		if err == db.ErrKeyNotFound {
			return domain.SoldItem{}, domain.ErrItemNotFound
		}
		return domain.SoldItem{}, fmt.Errorf("get item %s: %w", productID, err)
	}
	return FromAttributes(rec.Attributes), nil
}

func primaryPK(tenantID, productID string) string {
	return "TENANT#" + tenantID + "#PRODUCT#" + productID
}

// toRecord derives every key for one item.
func (r *Repo) toRecord(it domain.SoldItem) (db.Item, error) {
	if it.TenantID == "" || it.ProductID == "" || it.SellerID == "" {
		return db.Item{}, fmt.Errorf("item %q: tenant, product and seller ids required: %w",
			it.ProductID, domain.ErrValidation)
	}
	if err := indexkey.ValidateDate(it.SoldDate); err != nil {
		return db.Item{}, err
	}

	catShard, err := shard.CategoryShard(it.SellerID)
	if err != nil {
		return db.Item{}, err
	}
	embShard, err := shard.EmbeddingShard(it.SellerID)
	if err != nil {
		return db.Item{}, err
	}

	catPK, err := indexkey.CategoryPK(it.TenantID, it.Category, catShard)
	if err != nil {
		return db.Item{}, err
	}
	catSK, err := indexkey.DatePriceSK(it.SoldDate, it.PriceCents)
	if err != nil {
		return db.Item{}, err
	}
	embPK, err := indexkey.EmbeddingPK(it.TenantID, domain.EmbeddingType, embShard)
	if err != nil {
		return db.Item{}, err
	}
	embSK, err := indexkey.DateSK(it.SoldDate)
	if err != nil {
		return db.Item{}, err
	}

	soldAt, err := time.Parse("2006-01-02", it.SoldDate)
	if err != nil {
		return db.Item{}, fmt.Errorf("sold date %q: %w", it.SoldDate, domain.ErrValidation)
	}

	rec := db.Item{
		PartitionKey: primaryPK(it.TenantID, it.ProductID),
		SortKey:      itemSortKey,
		Attributes:   ToAttributes(it, catShard, embShard),
		IndexEntries: []db.IndexEntry{
			{
				IndexName:    CategoryIndex,
				PartitionKey: catPK,
				// The product suffix disambiguates same-date-same-price
				// items; it sorts after the price so range bounds on
				// DATE/PRICE prefixes still hold.
				SortKey: catSK + "#PRODUCT#" + it.ProductID,
			},
			{
				IndexName:    EmbeddingIndex,
				PartitionKey: embPK,
				SortKey:      embSK + "#PRODUCT#" + it.ProductID,
			},
		},
	}
	if r.retention > 0 {
		rec.ExpiresAt = soldAt.Add(r.retention)
	}
	return rec, nil
}

// ToAttributes flattens an item into the stored attribute map.
func ToAttributes(it domain.SoldItem, catShard, embShard int) map[string]string {
	attrs := map[string]string{
		"tenant_id":      it.TenantID,
		"product_id":     it.ProductID,
		"seller_id":      it.SellerID,
		"sold_date":      it.SoldDate,
		"price_cents":    strconv.FormatInt(it.PriceCents, 10),
		"category":       it.Category,
		"category_shard": strconv.Itoa(catShard),
		"emb_shard":      strconv.Itoa(embShard),
	}
	if it.Brand != "" {
		attrs["brand"] = it.Brand
	}
	if it.Condition != "" {
		attrs["condition"] = it.Condition
	}
	if it.Season != "" {
		attrs["season"] = it.Season
	}
	if it.Source != "" {
		attrs["source"] = it.Source
	}
	if it.EmbeddingKey != "" {
		attrs["embedding_key"] = it.EmbeddingKey
	}
	return attrs
}

// FromAttributes rebuilds an item from its stored attribute map.
func FromAttributes(attrs map[string]string) domain.SoldItem {
	price, _ := strconv.ParseInt(attrs["price_cents"], 10, 64)
	return domain.SoldItem{
		TenantID:     attrs["tenant_id"],
		ProductID:    attrs["product_id"],
		SellerID:     attrs["seller_id"],
		SoldDate:     attrs["sold_date"],
		PriceCents:   price,
		Category:     attrs["category"],
		Brand:        attrs["brand"],
		Condition:    attrs["condition"],
		Season:       attrs["season"],
		Source:       attrs["source"],
		EmbeddingKey: attrs["embedding_key"],
	}
}
