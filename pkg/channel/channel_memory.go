package channel

import (
	"context"
	"errors"
	"sync"

	"fibpipe/pkg/ready"
)

// ErrUnavailable is returned by Broker.Publish while it is marked down.
var ErrUnavailable = errors.New("channel unavailable")

// Broker is an in-process broadcast channel for tests and single-binary
// runs. Each subscription has a buffer; Publish blocks when a subscriber's
// buffer is full.
type Broker struct {
	ready.State

	topic  string
	buffer int

	mu   sync.Mutex
	subs map[*memorySubscription]struct{}
}

// NewBroker creates a broker. It starts ready.
func NewBroker(topic string, buffer int) *Broker {
	if topic == "" {
		topic = DefaultTopic
	}
	if buffer <= 0 {
		buffer = 64
	}
	b := &Broker{
		topic:  topic,
		buffer: buffer,
		subs:   make(map[*memorySubscription]struct{}),
	}
	b.MarkUp()
	return b
}

func (b *Broker) Publish(ctx context.Context, payload string) error {
	if !b.Ready() {
		return ErrUnavailable
	}

	b.mu.Lock()
	subs := make([]*memorySubscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	msg := Message{Topic: b.topic, Payload: payload}
	for _, s := range subs {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context) (Subscription, error) {
	if !b.Ready() {
		return nil, ErrUnavailable
	}
	s := &memorySubscription{
		broker: b,
		ch:     make(chan Message, b.buffer),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Ping succeeds unless the broker was marked down.
func (b *Broker) Ping(ctx context.Context) error {
	if !b.Ready() {
		return ErrUnavailable
	}
	return nil
}

type memorySubscription struct {
	broker *Broker
	ch     chan Message
	done   chan struct{}
	once   sync.Once
}

func (s *memorySubscription) Receive(ctx context.Context) (Message, error) {
	// Drain buffered messages before reporting closure.
	select {
	case msg := <-s.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
		close(s.done)
	})
	return nil
}
