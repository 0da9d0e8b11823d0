package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fibpipe/pkg/api"
)

// NewStandaloneCommand creates the standalone command.
func NewStandaloneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "standalone",
		Short: "Run the API and the worker in one process",
		Long: `Run the API and the worker in one process.

Both tiers share their collaborators, so with cache.driver, store.driver
and channel.driver set to memory the pipeline runs without Redis or a
database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStandalone(cmd.Context(), rootOpts)
		},
	}
}

func runStandalone(ctx context.Context, opts *RootOptions) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.ingestService(ctx)
	if err != nil {
		return err
	}
	e.logStartup(ctx, "standalone")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.runWorker(ctx) })
	g.Go(func() error {
		e.monitor.Run(ctx)
		return nil
	})
	g.Go(func() error { return e.serveMetrics(ctx) })
	g.Go(func() error {
		return serveHTTP(ctx, "api", e.cfg.HTTP.Addr, api.New(svc, e.logger), e.logger)
	})
	e.watchConfig(ctx)

	return g.Wait()
}
