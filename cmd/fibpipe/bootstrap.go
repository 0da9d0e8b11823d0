package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"fibpipe/pkg/store"
)

// bootstrapStore creates the store's schema after its first successful
// ping. It is not ready until the schema exists.
type bootstrapStore struct {
	store.Store

	migrator store.Migrator
	migrated atomic.Bool
	logger   *slog.Logger
}

func newBootstrapStore(s store.Store, logger *slog.Logger) *bootstrapStore {
	b := &bootstrapStore{Store: s, logger: logger}
	if m, ok := s.(store.Migrator); ok {
		b.migrator = m
	} else {
		b.migrated.Store(true)
	}
	return b
}

func (b *bootstrapStore) Ready() bool {
	return b.migrated.Load() && b.Store.Ready()
}

func (b *bootstrapStore) Ping(ctx context.Context) error {
	if err := b.Store.Ping(ctx); err != nil {
		return err
	}
	if b.migrated.Load() {
		return nil
	}
	if err := b.migrator.InitSchema(ctx); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	b.migrated.Store(true)
	b.logger.InfoContext(ctx, "store schema ready")
	return nil
}
