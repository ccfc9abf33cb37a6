// Package indexkey builds the partition and sort key strings for the sharded
// secondary indexes. Key shapes are a bit-exact storage contract: range
// queries depend on lexicographic sort-key ordering, and any change here is
// a data migration for every index that embeds these strings.
package indexkey

import (
	"fmt"
	"math"
	"time"

	"github.com/carousel-labs/pricedex/internal/domain"
	"github.com/carousel-labs/pricedex/internal/domain/shard"
)

const dateLayout = "2006-01-02"

// priceDigits is the fixed zero-padded width of the encoded price. Ten
// digits keep lexicographic order equal to numeric order for any price
// below $100M in cents.
const priceDigits = 10

// CategoryPK builds `TENANT#{t}#CATEGORY#{c}#SHARD#{n}`.
func CategoryPK(tenantID, category string, shardNum int) (string, error) {
	if tenantID == "" || category == "" {
		return "", fmt.Errorf("category pk: tenant and category required: %w", domain.ErrValidation)
	}
	if shardNum < 0 || shardNum >= shard.CategoryShards {
		return "", fmt.Errorf("category pk: shard %d out of [0,%d): %w",
			shardNum, shard.CategoryShards, domain.ErrValidation)
	}
	return fmt.Sprintf("TENANT#%s#CATEGORY#%s#SHARD#%d", tenantID, category, shardNum), nil
}

// EmbeddingPK builds `TENANT#{t}#EMBTYPE#{type}#SHARD#{n}`.
func EmbeddingPK(tenantID, embType string, shardNum int) (string, error) {
	if tenantID == "" || embType == "" {
		return "", fmt.Errorf("embedding pk: tenant and embedding type required: %w", domain.ErrValidation)
	}
	if shardNum < 0 || shardNum >= shard.EmbeddingShards {
		return "", fmt.Errorf("embedding pk: shard %d out of [0,%d): %w",
			shardNum, shard.EmbeddingShards, domain.ErrValidation)
	}
	return fmt.Sprintf("TENANT#%s#EMBTYPE#%s#SHARD#%d", tenantID, embType, shardNum), nil
}

// DateSK builds `DATE#{yyyy-mm-dd}`.
func DateSK(date string) (string, error) {
	if err := ValidateDate(date); err != nil {
		return "", err
	}
	return "DATE#" + date, nil
}

// DatePriceSK builds `DATE#{yyyy-mm-dd}#PRICE#{cents, zero-padded}`.
// The fixed-width price keeps numeric order under string comparison.
func DatePriceSK(date string, priceCents int64) (string, error) {
	if err := ValidateDate(date); err != nil {
		return "", err
	}
	if priceCents < 0 {
		return "", fmt.Errorf("sort key: negative price %d: %w", priceCents, domain.ErrValidation)
	}
	return fmt.Sprintf("DATE#%s#PRICE#%0*d", date, priceDigits, priceCents), nil
}

// DatePriceSKDollars is DatePriceSK for a dollar amount, rounding to cents
// before encoding so float drift never changes the key (99.99 → 0000009999).
func DatePriceSKDollars(date string, dollars float64) (string, error) {
	if dollars < 0 {
		return "", fmt.Errorf("sort key: negative price %.2f: %w", dollars, domain.ErrValidation)
	}
	return DatePriceSK(date, int64(math.Round(dollars*100)))
}

// ValidateDate rejects malformed strings and calendar-invalid dates
// (2025-02-31, month 13, day 0). The parse round-trip catches values a
// lenient date constructor would silently roll over.
func ValidateDate(date string) error {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date, domain.ErrValidation)
	}
	if t.Format(dateLayout) != date {
		return fmt.Errorf("non-canonical date %q: %w", date, domain.ErrValidation)
	}
	return nil
}
