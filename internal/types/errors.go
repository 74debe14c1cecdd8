package types

import (
	"errors"
	"fmt"
)

var (
	// ErrTickerNotFound marks a fetch that indicates a suspected invalid
	// ticker rather than a transient failure.
	ErrTickerNotFound = errors.New("ticker not found")

	// ErrStoreUnavailable marks a document store connectivity failure.
	// Unlike per-ticker errors it must terminate the collection cycle.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps a storage failure so callers can distinguish
// connectivity problems from ordinary query errors.
func StoreError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
