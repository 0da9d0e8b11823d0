package store

import (
	"context"
	"errors"
	"slices"
	"sync"

	"fibpipe/pkg/ready"
)

// ErrUnavailable is returned by InMemoryStore operations while it is
// marked down.
var ErrUnavailable = errors.New("store unavailable")

// InMemoryStore is a simple thread-safe slice-backed store for testing and
// local dev. It loses data on restart.
type InMemoryStore struct {
	ready.State

	mu      sync.RWMutex
	records []Record
}

// NewInMemoryStore creates a new in-memory store. It starts ready.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	s.MarkUp()
	return s
}

func (s *InMemoryStore) Append(ctx context.Context, rec Record) error {
	if !s.Ready() {
		return ErrUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) ScanAll(ctx context.Context) ([]Record, error) {
	if !s.Ready() {
		return nil, ErrUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.records)
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

// Ping succeeds unless the store was marked down.
func (s *InMemoryStore) Ping(ctx context.Context) error {
	if !s.Ready() {
		return ErrUnavailable
	}
	return nil
}

// InitSchema is a no-op.
func (s *InMemoryStore) InitSchema(ctx context.Context) error {
	return nil
}
