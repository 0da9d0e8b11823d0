package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fibpipe/pkg/ready"
)

// RedisCache implements Cache on a single Redis hash.
// The same client serves reads and writes so a read issued after a write
// on this handle observes it.
type RedisCache struct {
	ready.State

	client *redis.Client
	hash   string
}

// NewRedisCache creates a cache over the given client.
// If hash is empty, DefaultHash is used.
func NewRedisCache(client *redis.Client, hash string) *RedisCache {
	if hash == "" {
		hash = DefaultHash
	}
	return &RedisCache{
		client: client,
		hash:   hash,
	}
}

// NewRedisCacheFromURL creates a cache from a connection URL.
// Example: "redis://localhost:6379/0" or "rediss://:password@host:6380/0"
func NewRedisCacheFromURL(url, hash string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisCache(redis.NewClient(opts), hash), nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := c.track(c.client.HSet(ctx, c.hash, key, value).Err()); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.HGet(ctx, c.hash, key).Result()
	if errors.Is(err, redis.Nil) {
		c.MarkUp()
		return "", false, nil
	}
	if c.track(err) != nil {
		return "", false, fmt.Errorf("redis hget failed: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) GetAll(ctx context.Context) (map[string]string, error) {
	values, err := c.client.HGetAll(ctx, c.hash).Result()
	if c.track(err) != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// track updates readiness from a call result.
func (c *RedisCache) track(err error) error {
	return c.Track(err, redis.ErrClosed)
}

// Ping checks if the Redis connection is alive.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Observe(c.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.MarkDown()
	return c.client.Close()
}
