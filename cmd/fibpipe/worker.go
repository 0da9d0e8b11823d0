package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewWorkerCommand creates the worker command.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Compute published indices into the cache",
		Long: `Compute published indices into the cache.

The worker subscribes to the channel topic and handles one delivery at a
time. With channel.driver=river it works compute_fib jobs instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerCommand(cmd.Context(), rootOpts)
		},
	}
}

func runWorkerCommand(ctx context.Context, opts *RootOptions) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	e.logStartup(ctx, "worker")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.runWorker(ctx) })
	g.Go(func() error {
		e.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error { return e.serveMetrics(ctx) })
	e.watchConfig(ctx)

	return g.Wait()
}
