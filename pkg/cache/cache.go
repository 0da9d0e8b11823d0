// Package cache holds the fast read path: a flat mapping from index key to
// computed value (or the pending marker). There is no TTL and no eviction;
// the key space is bounded by the maximum accepted index.
package cache

import "context"

// PendingMarker is stored at a key between acceptance and computation.
const PendingMarker = "Nothing yet!"

// DefaultHash is the Redis hash that holds all values.
const DefaultHash = "values"

// Cache is the key-value contract shared by the API and the worker.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Set writes value at key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Get returns the value at key. found is false if the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// GetAll returns a snapshot of every entry. An empty cache yields an
	// empty, non-nil map.
	GetAll(ctx context.Context) (map[string]string, error)

	// Ping probes the connection and updates Ready.
	Ping(ctx context.Context) error

	// Ready reports whether the last probe succeeded.
	Ready() bool
}
