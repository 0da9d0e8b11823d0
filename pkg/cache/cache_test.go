package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func testCaches(t *testing.T) map[string]Cache {
	t.Helper()
	caches := map[string]Cache{
		"memory": NewInMemoryCache(),
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		hash := fmt.Sprintf("fibpipe:test:%s", t.Name())
		client.Del(context.Background(), hash)
		t.Cleanup(func() {
			client.Del(context.Background(), hash)
			client.Close()
		})

		rc := NewRedisCache(client, hash)
		if err := rc.Ping(context.Background()); err != nil {
			t.Fatalf("redis ping: %v", err)
		}
		caches["redis"] = rc
	}
	return caches
}

func TestCache_SetGet(t *testing.T) {
	for name, c := range testCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, found, err := c.Get(ctx, "7"); err != nil || found {
				t.Fatalf("Get on empty cache: found=%v err=%v", found, err)
			}

			if err := c.Set(ctx, "7", PendingMarker); err != nil {
				t.Fatalf("Set: %v", err)
			}
			v, found, err := c.Get(ctx, "7")
			if err != nil || !found || v != PendingMarker {
				t.Fatalf("Get = (%q, %v, %v), want pending marker", v, found, err)
			}

			if err := c.Set(ctx, "7", "21"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			v, _, _ = c.Get(ctx, "7")
			if v != "21" {
				t.Errorf("overwrite: got %q, want 21", v)
			}
		})
	}
}

func TestCache_GetAll(t *testing.T) {
	for name, c := range testCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			all, err := c.GetAll(ctx)
			if err != nil {
				t.Fatalf("GetAll: %v", err)
			}
			if all == nil || len(all) != 0 {
				t.Fatalf("empty cache: got %v, want empty non-nil map", all)
			}

			c.Set(ctx, "10", "89")
			c.Set(ctx, "3", PendingMarker)

			all, err = c.GetAll(ctx)
			if err != nil {
				t.Fatalf("GetAll: %v", err)
			}
			want := map[string]string{"10": "89", "3": PendingMarker}
			if diff := cmp.Diff(want, all); diff != "" {
				t.Errorf("GetAll mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInMemoryCache_SnapshotIsCopy(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	c.Set(ctx, "1", "1")

	snap, _ := c.GetAll(ctx)
	snap["1"] = "mutated"

	v, _, _ := c.Get(ctx, "1")
	if v != "1" {
		t.Errorf("snapshot aliased internal map: got %q", v)
	}
}

func TestInMemoryCache_MarkDown(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if !c.Ready() {
		t.Fatal("new cache should be ready")
	}
	c.MarkDown()

	if err := c.Set(ctx, "1", "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Set while down: got %v", err)
	}
	if _, err := c.GetAll(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("GetAll while down: got %v", err)
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping while down should fail")
	}
}

func TestInMemoryCache_ConcurrentWrites(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set(ctx, fmt.Sprintf("%d", i%5), fmt.Sprintf("%d", i))
		}(i)
	}
	wg.Wait()

	all, _ := c.GetAll(ctx)
	if len(all) != 5 {
		t.Errorf("expected 5 keys, got %d", len(all))
	}
}

func TestRedisCache_DefaultHash(t *testing.T) {
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer c.Close()
	if c.hash != DefaultHash {
		t.Errorf("hash = %q, want %q", c.hash, DefaultHash)
	}
	if c.Ready() {
		t.Error("cache should not be ready before a successful ping")
	}
}

func TestNewRedisCacheFromURL_Invalid(t *testing.T) {
	if _, err := NewRedisCacheFromURL("not-a-url://", ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestRedisCache_FailedCallMarksDown(t *testing.T) {
	// Nothing listens on port 1.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	c := NewRedisCache(client, "")
	defer c.Close()
	c.MarkUp()

	if err := c.Set(context.Background(), "5", PendingMarker); err == nil {
		t.Fatal("expected Set to fail")
	}
	if c.Ready() {
		t.Error("cache still ready after a refused connection")
	}

	c.MarkUp()
	if _, err := c.GetAll(context.Background()); err == nil {
		t.Fatal("expected GetAll to fail")
	}
	if c.Ready() {
		t.Error("cache still ready after a failed GetAll")
	}
}
