package cache

import (
	"context"
	"errors"
	"maps"
	"sync"

	"fibpipe/pkg/ready"
)

// ErrUnavailable is returned by InMemoryCache operations while it is
// marked down.
var ErrUnavailable = errors.New("cache unavailable")

// InMemoryCache is a thread-safe map-based cache for tests and local dev.
// It starts ready; MarkDown makes every operation fail with ErrUnavailable.
type InMemoryCache struct {
	ready.State

	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		data: make(map[string]string),
	}
	c.MarkUp()
	return c
}

func (c *InMemoryCache) Set(ctx context.Context, key, value string) error {
	if !c.Ready() {
		return ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	if !c.Ready() {
		return "", false, ErrUnavailable
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *InMemoryCache) GetAll(ctx context.Context) (map[string]string, error) {
	if !c.Ready() {
		return nil, ErrUnavailable
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.data), nil
}

// Ping succeeds unless the cache was marked down.
func (c *InMemoryCache) Ping(ctx context.Context) error {
	if !c.Ready() {
		return ErrUnavailable
	}
	return nil
}
