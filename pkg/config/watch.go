package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the file must stay quiet before it is reloaded.
// os.WriteFile truncates before writing, so the first event of a save can
// see an empty file.
const settleDelay = 50 * time.Millisecond

// Watch reloads path after each save and passes the result to onChange.
// It runs until ctx is cancelled.
//
// Bursts of events are coalesced until the file has been quiet for
// settleDelay. An empty file or one that fails to parse or validate is
// skipped, so onChange only ever sees a complete config.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors that save by rename replace the inode.
	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "config: watching for changes", "path", target)

	var (
		settle *time.Timer
		fire   <-chan time.Time
	)
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(settleDelay)
			} else {
				settle.Reset(settleDelay)
			}
			fire = settle.C

		case <-fire:
			fire = nil
			if cfg := reload(ctx, target); cfg != nil {
				onChange(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.ErrorContext(ctx, "config: watcher error", "err", err)
		}
	}
}

// reload reads and parses path, returning nil when the file should be
// ignored.
func reload(ctx context.Context, path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.WarnContext(ctx, "config: reload read failed", "path", path, "err", err)
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		slog.DebugContext(ctx, "config: ignoring empty file", "path", path)
		return nil
	}
	cfg, err := parse(data)
	if err != nil {
		slog.ErrorContext(ctx, "config: reload failed, keeping previous config",
			"path", path, "err", err)
		return nil
	}
	slog.InfoContext(ctx, "config: reloaded", "path", path, "log_level", cfg.Log.Level)
	return cfg
}
