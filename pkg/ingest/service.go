// Package ingest implements the API-side half of the pipeline: accepting
// indices and serving the two read views.
//
// Submit performs three side effects in a fixed order:
//
//  1. write the pending marker into the cache
//  2. publish the index on the channel
//  3. append the index to the durable store
//
// A failure stops the sequence and is reported, but completed steps are not
// rolled back. A failure at step 2 leaves a pending marker with no durable
// row; a failure at step 3 leaves a published (and soon computed) index with
// no durable row.
package ingest

import (
	"context"
	"time"

	"fibpipe/pkg/cache"
	"fibpipe/pkg/channel"
	"fibpipe/pkg/fib"
	"fibpipe/pkg/observe"
	"fibpipe/pkg/store"
)

// Dependency names used in errors and events.
const (
	DepCache   = "cache"
	DepChannel = "channel"
	DepStore   = "store"
)

// Timeouts bounds each collaborator call. Zero means no bound.
type Timeouts struct {
	Cache   time.Duration
	Channel time.Duration
	Store   time.Duration
}

// DefaultTimeouts are applied unless overridden with WithTimeouts.
var DefaultTimeouts = Timeouts{
	Cache:   2 * time.Second,
	Channel: 2 * time.Second,
	Store:   5 * time.Second,
}

// Health reports the readiness of each collaborator.
type Health struct {
	Cache   bool
	Channel bool
	Store   bool
}

// OK is true when every collaborator is ready.
func (h Health) OK() bool {
	return h.Cache && h.Channel && h.Store
}

// Service accepts indices and serves the read views.
// It is safe for concurrent use; requests do not coordinate with each other.
type Service struct {
	cache     cache.Cache
	publisher channel.Publisher
	store     store.Store

	maxIndex int
	timeouts Timeouts
	observer observe.Observer
}

// New creates a Service over the three collaborators.
func New(c cache.Cache, p channel.Publisher, s store.Store, opts ...Option) *Service {
	svc := &Service{
		cache:     c,
		publisher: p,
		store:     s,
		maxIndex:  fib.DefaultMaxIndex,
		timeouts:  DefaultTimeouts,
		observer:  observe.NoOpObserver{},
	}
	for _, opt := range opts {
		opt.apply(svc)
	}
	return svc
}

// MaxIndex returns the largest accepted index.
func (s *Service) MaxIndex() int {
	return s.maxIndex
}

// Submit validates raw and, if it is acceptable, runs the three side effects.
// It returns the canonical key of the accepted index.
func (s *Service) Submit(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	key, err := s.submit(ctx, raw)

	event := &observe.SubmitEvent{
		Input:    raw,
		Index:    key,
		Outcome:  outcome(err),
		Duration: time.Since(start),
		Error:    err,
	}
	s.observer.OnSubmit(ctx, event)

	return key, err
}

func (s *Service) submit(ctx context.Context, raw string) (string, error) {
	n, err := fib.ParseIndex(raw, s.maxIndex)
	if err != nil {
		return "", &ValidationError{Input: raw, Max: s.maxIndex, Cause: err}
	}
	key := fib.FormatIndex(n)

	if !s.cache.Ready() {
		return key, unavailable(DepCache, "set")
	}
	if !s.publisher.Ready() {
		return key, unavailable(DepChannel, "publish")
	}

	err = s.call(ctx, DepCache, "set", s.timeouts.Cache, s.cache.Ready, func(ctx context.Context) error {
		return s.cache.Set(ctx, key, cache.PendingMarker)
	})
	if err != nil {
		return key, err
	}

	err = s.call(ctx, DepChannel, "publish", s.timeouts.Channel, s.publisher.Ready, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, key)
	})
	if err != nil {
		return key, err
	}

	err = s.call(ctx, DepStore, "append", s.timeouts.Store, s.store.Ready, func(ctx context.Context) error {
		return s.store.Append(ctx, store.Record{Number: n})
	})
	if err != nil {
		return key, err
	}

	return key, nil
}

// All returns every durable record.
func (s *Service) All(ctx context.Context) ([]store.Record, error) {
	if !s.store.Ready() {
		return nil, unavailable(DepStore, "scan_all")
	}

	var records []store.Record
	err := s.call(ctx, DepStore, "scan_all", s.timeouts.Store, s.store.Ready, func(ctx context.Context) error {
		var err error
		records, err = s.store.ScanAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Current returns a snapshot of the cache.
func (s *Service) Current(ctx context.Context) (map[string]string, error) {
	if !s.cache.Ready() {
		return nil, unavailable(DepCache, "get_all")
	}

	var values map[string]string
	err := s.call(ctx, DepCache, "get_all", s.timeouts.Cache, s.cache.Ready, func(ctx context.Context) error {
		var err error
		values, err = s.cache.GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Health reports collaborator readiness without issuing any call.
func (s *Service) Health(ctx context.Context) Health {
	return Health{
		Cache:   s.cache.Ready(),
		Channel: s.publisher.Ready(),
		Store:   s.store.Ready(),
	}
}

// call runs fn under the given timeout, reports it to the observer and wraps
// any error in a *DependencyError. The error counts as unavailable when the
// collaborator is no longer ready after the failed call.
func (s *Service) call(ctx context.Context, dep, op string, timeout time.Duration, ready func() bool, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	s.observer.OnDependencyCall(ctx, &observe.DependencyEvent{
		Dependency: dep,
		Op:         op,
		Duration:   time.Since(start),
		Error:      err,
	})

	if err != nil {
		return &DependencyError{Dependency: dep, Op: op, Unavailable: !ready(), Cause: err}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observe.OutcomeAccepted
	case isValidation(err):
		return observe.OutcomeRejected
	case isUnavailable(err):
		return observe.OutcomeUnavailable
	default:
		return observe.OutcomeFailed
	}
}
