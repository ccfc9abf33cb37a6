package db

import "errors"

// Sentinel errors for storage operations.
var (
	ErrKeyNotFound    = errors.New("db: key not found")
	ErrObjectNotFound = errors.New("db: object not found")
)

// Op constants name the underlying command for error context.
const (
	OpPutItem    = "PUT_ITEM"
	OpGetItem    = "GET_ITEM"
	OpQueryIndex = "QUERY_INDEX"
	OpBatchPut   = "BATCH_PUT"
	OpGetObject  = "GET_OBJECT"
	OpCacheGet   = "CACHE_GET"
	OpCacheSet   = "CACHE_SET"
	OpCacheDel   = "CACHE_DEL"
	OpPing       = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
