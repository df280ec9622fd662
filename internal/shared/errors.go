package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyConflict indicates a stale version token. The caller must
	// reload the entity and re-apply the change; the write is never merged.
	ErrConcurrencyConflict = errors.New("concurrency conflict: entity was modified")
	// ErrResourceContention indicates bounded retries exhausted on a hot row.
	// Transient; the whole operation is safe to retry.
	ErrResourceContention = errors.New("resource contention: retries exhausted")
)
