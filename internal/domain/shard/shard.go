// Package shard assigns items to fixed shard spaces deterministically.
// Shard assignment is a pure function of the owning id alone, so it can be
// re-derived at any time: never key it off mutable fields.
package shard

import (
	"fmt"
	"unicode/utf8"

	"github.com/carousel-labs/pricedex/internal/domain"
)

// Shard space sizes. Changing either is a data migration.
const (
	CategoryShards  = 10
	EmbeddingShards = 5
)

// CategoryShard maps an id to [0, CategoryShards) using the code point of
// its last rune. O(1); relies on ids with sufficiently random trailing
// characters (UUID-like) for even spread.
func CategoryShard(id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("category shard: empty id: %w", domain.ErrValidation)
	}
	r, _ := utf8.DecodeLastRuneInString(id)
	return int(r) % CategoryShards, nil
}

// EmbeddingShard maps an id to [0, EmbeddingShards) using a 32-bit rolling
// hash over every rune (h = h*31 + codepoint, wrapped to 32 bits).
func EmbeddingShard(id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("embedding shard: empty id: %w", domain.ErrValidation)
	}
	var h int32
	for _, r := range id {
		h = h*31 + r
	}
	// abs via widening: int32 min would overflow a plain negation.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % EmbeddingShards), nil
}
