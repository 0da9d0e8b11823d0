package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"fibpipe/pkg/channel"
)

// RiverWorker adapts a Worker to River jobs published by channel.RiverChannel.
type RiverWorker struct {
	river.WorkerDefaults[channel.ComputeArgs]

	worker *Worker
}

// NewRiverWorker wraps w.
func NewRiverWorker(w *Worker) *RiverWorker {
	return &RiverWorker{worker: w}
}

// Work runs Handle on the job's payload.
func (w *RiverWorker) Work(ctx context.Context, job *river.Job[channel.ComputeArgs]) error {
	return classifyError(w.worker.Handle(ctx, job.Args.Index))
}

// classifyError maps Handle errors to River's retry semantics. Malformed
// payloads never succeed, so they are cancelled instead of retried.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrMalformedMessage) {
		return river.JobCancel(err)
	}
	if errors.Is(err, context.Canceled) {
		return river.JobCancel(err)
	}
	// Cache write failures return as-is so River retries with backoff.
	return err
}

// RunRiver starts a River client working compute jobs from queue on pool and
// blocks until ctx is done. Jobs are worked one at a time.
func RunRiver(ctx context.Context, pool *pgxpool.Pool, w *Worker, queue string) error {
	if queue == "" {
		queue = river.QueueDefault
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewRiverWorker(w))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			queue: {MaxWorkers: 1},
		},
		Workers: workers,
		Logger:  w.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create river client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river client: %w", err)
	}
	w.logger.InfoContext(ctx, "river worker started", "queue", queue)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Stop(stopCtx); err != nil {
		return fmt.Errorf("failed to stop river client: %w", err)
	}
	return nil
}
