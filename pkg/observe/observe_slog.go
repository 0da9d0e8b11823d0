package observe

import (
	"context"
	"log/slog"
)

// SlogObserver implements Observer using log/slog.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	obs := observe.NewSlogObserver(logger)
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates an observer that logs to the given slog.Logger.
// Level filtering is left to the logger's handler.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnSubmit(ctx context.Context, event *SubmitEvent) {
	attrs := []any{
		slog.String("input", event.Input),
		slog.String("outcome", event.Outcome),
		slog.Duration("duration", event.Duration),
	}
	if event.Index != "" {
		attrs = append(attrs, slog.String("index", event.Index))
	}

	switch event.Outcome {
	case OutcomeAccepted:
		o.logger.InfoContext(ctx, "index accepted", attrs...)
	case OutcomeRejected:
		o.logger.InfoContext(ctx, "index rejected", append(attrs, slog.String("err", event.Error.Error()))...)
	default:
		o.logger.ErrorContext(ctx, "submit failed", append(attrs, slog.String("err", event.Error.Error()))...)
	}
}

func (o *SlogObserver) OnDependencyCall(ctx context.Context, event *DependencyEvent) {
	if event.Error != nil {
		o.logger.WarnContext(ctx, "dependency call failed",
			slog.String("dependency", event.Dependency),
			slog.String("op", event.Op),
			slog.Duration("duration", event.Duration),
			slog.String("err", event.Error.Error()),
		)
		return
	}
	o.logger.DebugContext(ctx, "dependency call",
		slog.String("dependency", event.Dependency),
		slog.String("op", event.Op),
		slog.Duration("duration", event.Duration),
	)
}

func (o *SlogObserver) OnCompute(ctx context.Context, event *ComputeEvent) {
	if event.Error != nil {
		o.logger.ErrorContext(ctx, "error setting value in cache",
			slog.String("index", event.Payload),
			slog.String("value", event.Value),
			slog.String("err", event.Error.Error()),
		)
		return
	}
	o.logger.InfoContext(ctx, "value computed",
		slog.String("index", event.Payload),
		slog.String("value", event.Value),
		slog.Duration("duration", event.Duration),
	)
}

func (o *SlogObserver) OnDrop(ctx context.Context, event *DropEvent) {
	o.logger.WarnContext(ctx, "message dropped",
		slog.String("payload", event.Payload),
		slog.String("err", event.Reason.Error()),
	)
}
