package channel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"

	"fibpipe/pkg/ready"
)

// ComputeArgs is the River job carrying one published payload.
type ComputeArgs struct {
	Index string `json:"index"`
}

func (ComputeArgs) Kind() string { return "compute_fib" }

// RiverChannel implements Publisher by inserting River jobs.
//
// Unlike Redis Pub/Sub this is a work queue: each job is worked by one
// worker and River retries failed jobs. Jobs inserted while no worker runs
// are kept until one does.
type RiverChannel struct {
	ready.State

	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	queue  string
}

// NewRiverChannel creates an insert-only River client on pool. If queue is
// empty, river.QueueDefault is used.
func NewRiverChannel(pool *pgxpool.Pool, queue string) (*RiverChannel, error) {
	if queue == "" {
		queue = river.QueueDefault
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}
	return &RiverChannel{
		pool:   pool,
		client: client,
		queue:  queue,
	}, nil
}

func (c *RiverChannel) Publish(ctx context.Context, payload string) error {
	_, err := c.client.Insert(ctx, ComputeArgs{Index: payload}, &river.InsertOpts{
		Queue: c.queue,
	})
	if c.Track(err) != nil {
		return fmt.Errorf("river insert failed: %w", err)
	}
	return nil
}

// Ping checks if the job database is reachable.
func (c *RiverChannel) Ping(ctx context.Context) error {
	return c.Observe(c.pool.Ping(ctx))
}
