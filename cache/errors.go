package cache

import "errors"

var (
	// ErrNotFound means the product is in neither the cache nor the backing store.
	ErrNotFound = errors.New("product not found")

	// ErrStoreUnavailable means the backing store failed or timed out.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrCacheUnavailable means the cache store failed or timed out.
	ErrCacheUnavailable = errors.New("cache store unavailable")
)

// IsRetryable reports whether err is a transient availability failure that a
// caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrCacheUnavailable)
}
