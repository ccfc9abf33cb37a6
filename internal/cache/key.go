package cache

import (
	"fmt"

	"github.com/carousel-labs/pricedex/internal/domain"
)

// ValidateKey restricts cache keys to a bounded charset and length before
// any I/O happens. Allowed: ASCII letters, digits, and `: _ . # -`.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("cache key empty: %w", domain.ErrValidation)
	}
	if len(key) > maxKeyLen {
		return fmt.Errorf("cache key length %d exceeds %d: %w", len(key), maxKeyLen, domain.ErrValidation)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ':' || c == '_' || c == '.' || c == '#' || c == '-':
		default:
			return fmt.Errorf("cache key contains %q at %d: %w", c, i, domain.ErrValidation)
		}
	}
	return nil
}
