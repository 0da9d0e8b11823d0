// Package worker implements the compute side of the pipeline.
//
// A Worker subscribes once to the channel and then pulls deliveries one at a
// time, computing fib(index) and writing it to the cache under the payload
// exactly as received. Every failure is terminal for its message: malformed
// payloads are dropped, cache write failures are logged, and the loop moves
// on to the next delivery. No redelivery is requested.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fibpipe/pkg/cache"
	"fibpipe/pkg/channel"
	"fibpipe/pkg/fib"
	"fibpipe/pkg/observe"
)

// ErrMalformedMessage is returned by Handle for payloads that do not parse
// as an acceptable index.
var ErrMalformedMessage = errors.New("malformed message")

// Worker consumes a channel subscription and fills the cache.
type Worker struct {
	subscriber channel.Subscriber
	cache      cache.Cache

	maxIndex     int
	cacheTimeout time.Duration
	backoff      BackoffStrategy
	observer     observe.Observer
	logger       *slog.Logger
}

// Config holds optional Worker settings. Zero values select defaults.
type Config struct {
	// MaxIndex bounds accepted payloads (default fib.DefaultMaxIndex).
	// It is capped at fib.MaxComputable.
	MaxIndex int

	// CacheTimeout bounds each cache write (default 2s).
	CacheTimeout time.Duration

	// Backoff spaces subscribe and receive retries (default DefaultBackoff).
	Backoff BackoffStrategy

	Observer observe.Observer
	Logger   *slog.Logger
}

// New creates a Worker. sub may be nil for workers driven only through
// Handle (for example by RiverWorker).
func New(sub channel.Subscriber, c cache.Cache, cfg Config) *Worker {
	w := &Worker{
		subscriber:   sub,
		cache:        c,
		maxIndex:     cfg.MaxIndex,
		cacheTimeout: cfg.CacheTimeout,
		backoff:      cfg.Backoff,
		observer:     cfg.Observer,
		logger:       cfg.Logger,
	}
	if w.maxIndex <= 0 {
		w.maxIndex = fib.DefaultMaxIndex
	}
	if w.maxIndex > fib.MaxComputable {
		w.maxIndex = fib.MaxComputable
	}
	if w.cacheTimeout <= 0 {
		w.cacheTimeout = 2 * time.Second
	}
	if w.backoff == nil {
		w.backoff = DefaultBackoff
	}
	if w.observer == nil {
		w.observer = observe.NoOpObserver{}
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run subscribes and processes deliveries until ctx is cancelled or the
// subscription is closed. Subscribe failures are retried with backoff, so a
// worker started before the channel is reachable waits rather than exiting.
func (w *Worker) Run(ctx context.Context) error {
	if w.subscriber == nil {
		return errors.New("worker: no subscriber configured")
	}

	sub, err := w.subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	w.logger.InfoContext(ctx, "worker subscribed")

	failures := 0
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, channel.ErrClosed) {
				w.logger.InfoContext(ctx, "worker stopped")
				return nil
			}

			failures++
			delay := w.backoff.NextDelay(failures)
			w.logger.WarnContext(ctx, "receive failed",
				slog.Int("attempt", failures),
				slog.Duration("retry_in", delay),
				slog.String("err", err.Error()),
			)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}
		failures = 0

		// Handle reports through the observer; the error is not actionable here.
		_ = w.Handle(ctx, msg.Payload)
	}
}

func (w *Worker) subscribe(ctx context.Context) (channel.Subscription, error) {
	for attempt := 1; ; attempt++ {
		sub, err := w.subscriber.Subscribe(ctx)
		if err == nil {
			return sub, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := w.backoff.NextDelay(attempt)
		w.logger.WarnContext(ctx, "subscribe failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("err", err.Error()),
		)
		if !sleep(ctx, delay) {
			return nil, ctx.Err()
		}
	}
}

// Handle processes one payload: parse, compute, write to the cache under the
// payload as received. It is safe to call repeatedly with the same payload.
func (w *Worker) Handle(ctx context.Context, payload string) error {
	start := time.Now()

	n, err := fib.ParseIndex(payload, w.maxIndex)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		w.observer.OnDrop(ctx, &observe.DropEvent{Payload: payload, Reason: err})
		return err
	}

	value, err := fib.String(n)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		w.observer.OnDrop(ctx, &observe.DropEvent{Payload: payload, Reason: err})
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, w.cacheTimeout)
	err = w.cache.Set(cctx, payload, value)
	cancel()

	w.observer.OnCompute(ctx, &observe.ComputeEvent{
		Payload:  payload,
		Value:    value,
		Duration: time.Since(start),
		Error:    err,
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", payload, err)
	}
	return nil
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
