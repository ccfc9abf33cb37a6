package domain

import "errors"

var (
	// ErrValidation signals malformed input: bad key components, shard index
	// out of range, invalid calendar date, invalid cache key. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrItemNotFound signals a missing sold item.
	ErrItemNotFound = errors.New("item not found")
	// ErrDimensionMismatch signals vectors of different lengths in a
	// similarity computation. A contract violation, not a transient failure:
	// it propagates and fails the calling operation.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCircuitOpen signals a call rejected by an open circuit breaker.
	// Cache callers treat it as a miss, never as a hard error.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
