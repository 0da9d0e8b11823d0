// Package channel carries accepted indices from the API tier to workers.
//
// A channel is a single named topic. Payloads are the bare decimal index with
// no envelope. Delivery is broadcast: every subscriber receives its own copy
// of every message published while it is subscribed, and nothing is kept for
// subscribers that were not connected.
package channel

import (
	"context"
	"errors"
)

// DefaultTopic is the topic indices are published on.
const DefaultTopic = "insert"

// ErrClosed is returned by Receive after the subscription is closed.
var ErrClosed = errors.New("subscription closed")

// Message is one delivery.
type Message struct {
	Topic   string
	Payload string
}

// Publisher sends payloads on the topic.
type Publisher interface {
	Publish(ctx context.Context, payload string) error

	// Ping probes the connection and updates Ready.
	Ping(ctx context.Context) error

	// Ready reports whether the last probe succeeded.
	Ready() bool
}

// Subscriber opens subscriptions on the topic.
type Subscriber interface {
	// Subscribe returns once the subscription is confirmed, so messages
	// published after it returns are delivered.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a blocking, one-at-a-time receive handle.
type Subscription interface {
	// Receive blocks until a message arrives, ctx is done, or the
	// subscription is closed (ErrClosed).
	Receive(ctx context.Context) (Message, error)

	Close() error
}
