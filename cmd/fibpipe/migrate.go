package main

import (
	"context"
	"fmt"

	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"

	"fibpipe/pkg/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the values table and, for the river driver, River's tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), rootOpts)
		},
	}
}

func runMigrate(ctx context.Context, opts *RootOptions) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.rawStore(ctx)
	if err != nil {
		return err
	}
	if m, ok := s.(store.Migrator); ok {
		sctx := ctx
		if t := e.cfg.Timeouts.Store; t > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		if err := m.InitSchema(sctx); err != nil {
			return fmt.Errorf("failed to init %s schema: %w", e.cfg.Store.Driver, err)
		}
	}
	e.logger.InfoContext(ctx, "store schema ready",
		"driver", e.cfg.Store.Driver, "table", e.cfg.Store.Table)

	if e.cfg.Channel.Driver != "river" {
		return nil
	}

	pool, err := e.postgresPool(ctx)
	if err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to run river migrations: %w", err)
	}
	for _, v := range res.Versions {
		e.logger.InfoContext(ctx, "river migration applied", "version", v.Version)
	}
	return nil
}
