package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fibpipe/pkg/ready"
)

// RedisChannel implements Publisher and Subscriber on Redis Pub/Sub.
type RedisChannel struct {
	ready.State

	client *redis.Client
	topic  string
}

// NewRedisChannel creates a channel over client. If topic is empty,
// DefaultTopic is used.
func NewRedisChannel(client *redis.Client, topic string) *RedisChannel {
	if topic == "" {
		topic = DefaultTopic
	}
	return &RedisChannel{
		client: client,
		topic:  topic,
	}
}

// Topic returns the channel name.
func (c *RedisChannel) Topic() string {
	return c.topic
}

func (c *RedisChannel) Publish(ctx context.Context, payload string) error {
	if err := c.Track(c.client.Publish(ctx, c.topic, payload).Err(), redis.ErrClosed); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

func (c *RedisChannel) Subscribe(ctx context.Context) (Subscription, error) {
	ps := c.client.Subscribe(ctx, c.topic)

	// Wait for the server to confirm so no message published after this
	// call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s failed: %w", c.topic, err)
	}
	return &redisSubscription{ps: ps}, nil
}

// Ping checks if the Redis connection is alive.
func (c *RedisChannel) Ping(ctx context.Context) error {
	return c.Observe(c.client.Ping(ctx).Err())
}

// Close closes the Redis connection.
func (c *RedisChannel) Close() error {
	c.MarkDown()
	return c.client.Close()
}

type redisSubscription struct {
	ps *redis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context) (Message, error) {
	msg, err := s.ps.ReceiveMessage(ctx)
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	return Message{Topic: msg.Channel, Payload: msg.Payload}, nil
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
