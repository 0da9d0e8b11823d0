package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"fibpipe/pkg/api"
)

// NewAPICommand creates the api command.
func NewAPICommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API.

Accepted indices are written to the cache as pending, published on the
channel and appended to the durable store. Collaborators that are not
reachable at startup are retried in the background; until then the
affected endpoints answer 503 and /api/health reports DEGRADED.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd.Context(), rootOpts)
		},
	}
}

func runAPI(ctx context.Context, opts *RootOptions) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.ingestService(ctx)
	if err != nil {
		return err
	}
	e.logStartup(ctx, "api")

	g, ctx := errgroup.WithContext(ctx)
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
