package channel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestBroker_BroadcastToEverySubscriber(t *testing.T) {
	b := NewBroker("", 8)
	ctx := context.Background()

	s1, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s1.Close()
	s2, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if err := b.Publish(ctx, "10"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, s := range []Subscription{s1, s2} {
		msg, err := s.Receive(ctx)
		if err != nil {
			t.Fatalf("subscriber %d Receive: %v", i, err)
		}
		if msg.Payload != "10" || msg.Topic != DefaultTopic {
			t.Errorf("subscriber %d got %+v", i, msg)
		}
	}
}

func TestBroker_NoReplayForLateSubscribers(t *testing.T) {
	b := NewBroker("insert", 8)
	ctx := context.Background()

	if err := b.Publish(ctx, "1"); err != nil {
		t.Fatal(err)
	}

	s, _ := b.Subscribe(ctx)
	defer s.Close()

	rctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.Receive(rctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected no message, got err=%v", err)
	}
}

func TestBroker_CloseUnblocksReceive(t *testing.T) {
	b := NewBroker("", 1)
	s, _ := b.Subscribe(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()
	s.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("got %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}

	if n := b.Subscribers(); n != 0 {
		t.Errorf("Subscribers = %d, want 0", n)
	}
}

func TestBroker_PublishWhileDown(t *testing.T) {
	b := NewBroker("", 1)
	b.MarkDown()
	if err := b.Publish(context.Background(), "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestBroker_ConcurrentPublish(t *testing.T) {
	b := NewBroker("", 100)
	ctx := context.Background()
	s, _ := b.Subscribe(ctx)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(ctx, fmt.Sprintf("%d", i%41))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		if _, err := s.Receive(ctx); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}
}

func TestRedisChannel_PublishSubscribe(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	topic := fmt.Sprintf("fibpipe-test-%d", time.Now().UnixNano())
	c := NewRedisChannel(redis.NewClient(opts), topic)
	defer c.Close()

	if err := c.Ping(ctx); err != nil || !c.Ready() {
		t.Fatalf("Ping: %v", err)
	}

	sub, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := c.Publish(ctx, "10"); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.Receive(rctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Payload != "10" || msg.Topic != topic {
		t.Errorf("got %+v", msg)
	}
}

func TestNewRedisChannel_DefaultTopic(t *testing.T) {
	c := NewRedisChannel(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer c.Close()
	if c.Topic() != DefaultTopic {
		t.Errorf("Topic = %q, want %q", c.Topic(), DefaultTopic)
	}
}

func TestComputeArgs_Kind(t *testing.T) {
	if (ComputeArgs{}).Kind() != "compute_fib" {
		t.Error("unexpected job kind")
	}
}
