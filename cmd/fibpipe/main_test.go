package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"fibpipe/pkg/ingest"
	"fibpipe/pkg/store"
	"fibpipe/pkg/worker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fibpipe.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	want := map[string]bool{"api": false, "worker": false, "standalone": false, "migrate": false}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"migrate", "--log-level", "loud"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Fatalf("got %v, want invalid log level error", err)
	}
}

func TestRootCommand_BadConfig(t *testing.T) {
	p := writeConfig(t, "store:\n  driver: oracle\n")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"migrate", "--config", p})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "store.driver") {
		t.Fatalf("got %v, want store.driver error", err)
	}
}

func TestMigrate_SQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "values.db")
	p := writeConfig(t, `
cache:
  driver: memory
channel:
  driver: memory
store:
  driver: sqlite
  dsn: `+dsn+`
metrics:
  addr: ""
`)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"migrate", "--config", p, "--log-level", "error"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM "values"`).Scan(&n); err != nil {
		t.Fatalf("values table missing: %v", err)
	}
	if n != 0 {
		t.Errorf("rows: got %d, want 0", n)
	}
}

// countingStore fails its first pings and counts InitSchema calls.
type countingStore struct {
	*store.InMemoryStore
	failPings atomic.Int32
	inits     atomic.Int32
}

func (s *countingStore) Ping(ctx context.Context) error {
	if s.failPings.Add(-1) >= 0 {
		return errors.New("connection refused")
	}
	return s.InMemoryStore.Ping(ctx)
}

func (s *countingStore) InitSchema(ctx context.Context) error {
	s.inits.Add(1)
	return nil
}

func TestBootstrapStore_InitsOnceAfterReachable(t *testing.T) {
	cs := &countingStore{InMemoryStore: store.NewInMemoryStore()}
	cs.failPings.Store(1)
	b := newBootstrapStore(cs, slog.Default())
	ctx := context.Background()

	if b.Ready() {
		t.Fatal("ready before schema exists")
	}
	if err := b.Ping(ctx); err == nil {
		t.Fatal("expected first ping to fail")
	}
	if b.Ready() || cs.inits.Load() != 0 {
		t.Fatalf("after failed ping: ready=%v inits=%d", b.Ready(), cs.inits.Load())
	}

	for i := 0; i < 3; i++ {
		if err := b.Ping(ctx); err != nil {
			t.Fatalf("ping %d: %v", i, err)
		}
	}
	if !b.Ready() {
		t.Error("not ready after successful ping")
	}
	if got := cs.inits.Load(); got != 1 {
		t.Errorf("InitSchema calls: got %d, want 1", got)
	}
}

// plainStore hides InMemoryStore's InitSchema.
type plainStore struct {
	store.Store
}

func TestBootstrapStore_NoMigrator(t *testing.T) {
	b := newBootstrapStore(plainStore{store.NewInMemoryStore()}, slog.Default())
	if !b.Ready() {
		t.Error("store without schema should be ready immediately")
	}
}

func TestEnv_TiersShareMaxIndex(t *testing.T) {
	p := writeConfig(t, `
cache:
  driver: memory
channel:
  driver: memory
store:
  driver: memory
max_index: 3
`)
	e, err := setup(&RootOptions{ConfigPath: p, LogLevel: "error"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	svc, err := e.ingestService(ctx)
	if err != nil {
		t.Fatalf("ingestService: %v", err)
	}
	c, err := e.openCache()
	if err != nil {
		t.Fatal(err)
	}
	w := e.newWorker(nil, c)

	if _, err := svc.Submit(ctx, "4"); !errors.Is(err, ingest.ErrValidation) {
		t.Errorf("api accepted 4 with max_index 3: %v", err)
	}
	if err := w.Handle(ctx, "4"); !errors.Is(err, worker.ErrMalformedMessage) {
		t.Errorf("worker accepted 4 with max_index 3: %v", err)
	}
	if err := w.Handle(ctx, "3"); err != nil {
		t.Errorf("worker rejected 3: %v", err)
	}
}
