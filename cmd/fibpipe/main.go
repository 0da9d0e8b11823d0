// Command fibpipe runs the API tier, the compute worker, or both.
//
// Usage:
//
//	fibpipe api        [--config fibpipe.yaml]
//	fibpipe worker     [--config fibpipe.yaml]
//	fibpipe standalone [--config fibpipe.yaml]
//	fibpipe migrate    [--config fibpipe.yaml]
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := NewRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		slog.Error("fibpipe failed", "err", err)
		os.Exit(1)
	}
}
