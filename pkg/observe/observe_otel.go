package observe

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OTelObserver implements Observer using OpenTelemetry for traces and metrics.
//
// Example:
//
//	obs, _ := observe.NewOTelObserver(otel.Tracer("fibpipe"), otel.Meter("fibpipe"))
type OTelObserver struct {
	tracer trace.Tracer

	submissions        metric.Int64Counter
	dependencyDuration metric.Float64Histogram
	computeDuration    metric.Float64Histogram
	dropped            metric.Int64Counter
}

// NewOTelObserver creates an OpenTelemetry observer.
func NewOTelObserver(tracer trace.Tracer, meter metric.Meter) (*OTelObserver, error) {
	submissions, err := meter.Int64Counter(
		"fibpipe.submissions",
		metric.WithDescription("Number of index submissions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submissions counter: %w", err)
	}

	dependencyDuration, err := meter.Float64Histogram(
		"fibpipe.dependency.duration",
		metric.WithDescription("Latency of collaborator calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency duration histogram: %w", err)
	}

	computeDuration, err := meter.Float64Histogram(
		"fibpipe.compute.duration",
		metric.WithDescription("Time from receipt to cache write in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute duration histogram: %w", err)
	}

	dropped, err := meter.Int64Counter(
		"fibpipe.messages.dropped",
		metric.WithDescription("Number of malformed deliveries dropped"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}

	return &OTelObserver{
		tracer:             tracer,
		submissions:        submissions,
		dependencyDuration: dependencyDuration,
		computeDuration:    computeDuration,
		dropped:            dropped,
	}, nil
}

func (o *OTelObserver) OnSubmit(ctx context.Context, event *SubmitEvent) {
	o.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", event.Outcome),
	))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.SetAttributes(
			attribute.String("fibpipe.index", event.Index),
			attribute.String("fibpipe.outcome", event.Outcome),
		)
		if event.Error != nil {
			span.SetStatus(codes.Error, event.Error.Error())
			span.RecordError(event.Error)
		}
	}
}

func (o *OTelObserver) OnDependencyCall(ctx context.Context, event *DependencyEvent) {
	attrs := []attribute.KeyValue{
		attribute.String("dependency", event.Dependency),
		attribute.String("op", event.Op),
		attribute.Bool("success", event.Error == nil),
	}
	o.dependencyDuration.Record(ctx, event.Duration.Seconds(), metric.WithAttributes(attrs...))

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent(event.Dependency+"."+event.Op, trace.WithAttributes(attrs...))
	}
}

// OnCompute records the compute duration and emits a span covering the
// delivery, back-dated by event.Duration.
func (o *OTelObserver) OnCompute(ctx context.Context, event *ComputeEvent) {
	o.computeDuration.Record(ctx, event.Duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", event.Error == nil),
	))

	_, span := o.tracer.Start(ctx, "worker.compute",
		trace.WithTimestamp(time.Now().Add(-event.Duration)),
		trace.WithAttributes(
			attribute.String("fibpipe.index", event.Payload),
			attribute.String("fibpipe.value", event.Value),
		),
	)
	if event.Error != nil {
		span.SetStatus(codes.Error, event.Error.Error())
		span.RecordError(event.Error)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *OTelObserver) OnDrop(ctx context.Context, event *DropEvent) {
	o.dropped.Add(ctx, 1)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("message_dropped", trace.WithAttributes(
			attribute.String("payload", event.Payload),
			attribute.String("error", event.Reason.Error()),
		))
	}
}
