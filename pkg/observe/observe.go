// Package observe defines the hooks the API and the worker call as indices
// move through the pipeline, along with slog, Prometheus and OpenTelemetry
// implementations.
package observe

import (
	"context"
	"time"
)

// Observer is the interface for observing pipeline events.
//
// All Observer methods are called synchronously on the request or worker
// path, so implementations should be fast and non-blocking.
type Observer interface {
	// OnSubmit is called once per POST, after validation and side effects.
	OnSubmit(ctx context.Context, event *SubmitEvent)

	// OnDependencyCall is called after each cache, channel or store call.
	OnDependencyCall(ctx context.Context, event *DependencyEvent)

	// OnCompute is called after the worker handled a delivery.
	OnCompute(ctx context.Context, event *ComputeEvent)

	// OnDrop is called when the worker discards a delivery.
	OnDrop(ctx context.Context, event *DropEvent)
}

// SubmitEvent describes one submission.
type SubmitEvent struct {
	Input    string // raw request value
	Index    string // canonical key; empty if validation failed
	Outcome  string // accepted | rejected | unavailable | failed
	Duration time.Duration
	Error    error
}

// Submission outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// DependencyEvent describes one collaborator call.
type DependencyEvent struct {
	Dependency string // cache | channel | store
	Op         string // set | get_all | publish | append | scan_all
	Duration   time.Duration
	Error      error
}

// ComputeEvent describes one processed delivery.
type ComputeEvent struct {
	Payload  string
	Value    string
	Duration time.Duration
	Error    error // cache write failure, if any
}

// DropEvent describes a delivery that was discarded.
type DropEvent struct {
	Payload string
	Reason  error
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) OnSubmit(ctx context.Context, event *SubmitEvent)             {}
func (NoOpObserver) OnDependencyCall(ctx context.Context, event *DependencyEvent) {}
func (NoOpObserver) OnCompute(ctx context.Context, event *ComputeEvent)           {}
func (NoOpObserver) OnDrop(ctx context.Context, event *DropEvent)                 {}

// MultiObserver combines multiple observers into one.
// Events are sent to all observers in order.
type MultiObserver struct {
	Observers []Observer
}

func (m *MultiObserver) OnSubmit(ctx context.Context, event *SubmitEvent) {
	for _, obs := range m.Observers {
		obs.OnSubmit(ctx, event)
	}
}

func (m *MultiObserver) OnDependencyCall(ctx context.Context, event *DependencyEvent) {
	for _, obs := range m.Observers {
		obs.OnDependencyCall(ctx, event)
	}
}

func (m *MultiObserver) OnCompute(ctx context.Context, event *ComputeEvent) {
	for _, obs := range m.Observers {
		obs.OnCompute(ctx, event)
	}
}

func (m *MultiObserver) OnDrop(ctx context.Context, event *DropEvent) {
	for _, obs := range m.Observers {
		obs.OnDrop(ctx, event)
	}
}
