// Package ready tracks whether a collaborator connection is usable.
//
// Each adapter owns a State and updates it from its Ping method and from the
// outcome of every live call (Track). A Monitor
// pings every registered target in the background so that a collaborator
// which was down at startup becomes ready without a restart.
package ready

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State is a connected/ready flag owned by one adapter.
// The zero value reports not ready.
type State struct {
	up atomic.Bool
}

// Ready reports whether the last probe succeeded.
func (s *State) Ready() bool {
	return s.up.Load()
}

// Observe records the outcome of a probe and returns err unchanged.
func (s *State) Observe(err error) error {
	s.up.Store(err == nil)
	return err
}

// Track records the outcome of a live call and returns err unchanged. A nil
// error marks the state ready and a connection failure marks it not ready;
// other errors (bad query, missing key) leave it as it was. closed lists
// driver sentinels that also mean the connection is gone.
func (s *State) Track(err error, closed ...error) error {
	switch {
	case err == nil:
		s.up.Store(true)
	case IsConnectionError(err, closed...):
		s.up.Store(false)
	}
	return err
}

// IsConnectionError reports whether err means the peer could not be reached
// or dropped the connection. Timeouts count, since context.DeadlineExceeded
// is a net.Error. Cancellation does not.
func IsConnectionError(err error, closed ...error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	for _, c := range closed {
		if errors.Is(err, c) {
			return true
		}
	}
	switch {
	case errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// MarkDown forces the state to not ready.
func (s *State) MarkDown() {
	s.up.Store(false)
}

// MarkUp forces the state to ready.
func (s *State) MarkUp() {
	s.up.Store(true)
}

// Pinger is implemented by every collaborator adapter.
type Pinger interface {
	Ping(ctx context.Context) error
	Ready() bool
}

type target struct {
	name   string
	pinger Pinger
	last   bool
	seen   bool
}

// Monitor pings registered targets on an interval and logs transitions.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	targets []*target
}

// NewMonitor creates a Monitor. A zero interval defaults to 5s and a zero
// timeout to 2s.
func NewMonitor(interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{interval: interval, timeout: timeout, logger: logger}
}

// Add registers a target under name.
func (m *Monitor) Add(name string, p Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = append(m.targets, &target{name: name, pinger: p})
}

// CheckAll pings every target once.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.targets {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := t.pinger.Ping(pctx)
		cancel()

		up := err == nil
		if t.seen && up == t.last {
			continue
		}
		t.seen = true
		t.last = up
		if up {
			m.logger.InfoContext(ctx, "collaborator ready", slog.String("name", t.name))
		} else {
			m.logger.WarnContext(ctx, "collaborator unavailable",
				slog.String("name", t.name),
				slog.String("err", err.Error()),
			)
		}
	}
}

// Run pings all targets immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}
