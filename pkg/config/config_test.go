package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fibpipe/pkg/fib"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func envFrom(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if err := validate(cfg); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.MaxIndex != fib.DefaultMaxIndex {
		t.Errorf("max_index: got %d, want %d", cfg.MaxIndex, fib.DefaultMaxIndex)
	}
	if cfg.Channel.Topic != "insert" {
		t.Errorf("channel.topic: got %q, want insert", cfg.Channel.Topic)
	}
	if cfg.HTTP.Addr != ":5000" {
		t.Errorf("http.addr: got %q, want :5000", cfg.HTTP.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
http:
  addr: ":9000"
redis:
  host: cache.internal
  port: 6380
  tls: true
store:
  driver: sqlite
  dsn: /tmp/values.db
channel:
  driver: memory
timeouts:
  store: 750ms
max_index: 30
log:
  level: debug
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("http.addr: got %q", cfg.HTTP.Addr)
	}
	if cfg.Redis.Addr() != "cache.internal:6380" || !cfg.Redis.TLS {
		t.Errorf("redis: got %s tls=%v", cfg.Redis.Addr(), cfg.Redis.TLS)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "/tmp/values.db" {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if cfg.Timeouts.Store != 750*time.Millisecond {
		t.Errorf("timeouts.store: got %v", cfg.Timeouts.Store)
	}
	// Unset keys keep their defaults.
	if cfg.Timeouts.Cache != 2*time.Second {
		t.Errorf("timeouts.cache: got %v", cfg.Timeouts.Cache)
	}
	if cfg.MaxIndex != 30 {
		t.Errorf("max_index: got %d", cfg.MaxIndex)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", cfg.Log.SlogLevel())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := writeConfig(t, "http: [unterminated")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := defaults()
	err := applyEnv(cfg, envFrom(map[string]string{
		"REDIS_HOST":        "redis",
		"REDIS_PORT":        "6390",
		"PGHOST":            "db",
		"PGUSER":            "fib",
		"PGPASSWORD":        "s3cret",
		"PGDATABASE":        "fibs",
		"PGPORT":            "5433",
		"FIBPIPE_MAX_INDEX": "20",
	}))
	if err != nil {
		t.Fatalf("applyEnv: %v", err)
	}

	if cfg.Redis.Addr() != "redis:6390" {
		t.Errorf("redis addr: got %s", cfg.Redis.Addr())
	}
	if cfg.MaxIndex != 20 {
		t.Errorf("max_index: got %d", cfg.MaxIndex)
	}

	conn := cfg.Postgres.ConnString()
	if conn != "postgres://fib:s3cret@db:5433/fibs?sslmode=disable" {
		t.Errorf("conn string: got %s", conn)
	}
	if red := cfg.Postgres.Redacted(); strings.Contains(red, "s3cret") {
		t.Errorf("password not redacted: %s", red)
	}
}

func TestApplyEnv_URLsWin(t *testing.T) {
	cfg := defaults()
	applyEnv(cfg, envFrom(map[string]string{
		"DATABASE_URL": "postgres://u@h/d",
		"PGHOST":       "ignored",
	}))
	if cfg.Postgres.ConnString() != "postgres://u@h/d" {
		t.Errorf("conn string: got %s", cfg.Postgres.ConnString())
	}
}

func TestApplyEnv_BadInteger(t *testing.T) {
	cfg := defaults()
	err := applyEnv(cfg, envFrom(map[string]string{"REDIS_PORT": "six"}))
	if err == nil || !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Errorf("expected REDIS_PORT error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"max index too large", func(c *Config) { c.MaxIndex = 93 }, "max_index"},
		{"negative max index", func(c *Config) { c.MaxIndex = -1 }, "max_index"},
		{"zero max index", func(c *Config) { c.MaxIndex = 0 }, "max_index"},
		{"bad cache driver", func(c *Config) { c.Cache.Driver = "memcached" }, "cache.driver"},
		{"bad store driver", func(c *Config) { c.Store.Driver = "oracle" }, "store.driver"},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite" }, "store.dsn"},
		{"bad channel driver", func(c *Config) { c.Channel.Driver = "kafka" }, "channel.driver"},
		{"empty topic", func(c *Config) { c.Channel.Topic = "" }, "channel.topic"},
		{"negative timeout", func(c *Config) { c.Timeouts.Cache = -time.Second }, "timeouts"},
		{"bad redis port", func(c *Config) { c.Redis.Port = 0 }, "redis.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestSlogLevel_Unknown(t *testing.T) {
	if lvl := (LogConfig{Level: "loud"}).SlogLevel(); lvl != slog.LevelInfo {
		t.Errorf("got %v, want info", lvl)
	}
	if lvl := (LogConfig{Level: "WARN"}).SlogLevel(); lvl != slog.LevelWarn {
		t.Errorf("got %v, want warn", lvl)
	}
}

// startWatch runs Watch on path until the test ends and returns the
// reloaded configs.
func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Watch(ctx, path, func(c *Config) { reloaded <- c }) //nolint:errcheck
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	return reloaded
}

// waitForLevel drains reloads until one carries level.
func waitForLevel(t *testing.T, reloaded <-chan *Config, level string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-reloaded:
			if c.Log.Level == level {
				return
			}
		case <-timeout:
			t.Fatalf("no reload with log.level %q observed", level)
		}
	}
}

func TestWatch_Reloads(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")
	reloaded := startWatch(t, p)

	if err := os.WriteFile(p, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitForLevel(t, reloaded, "debug")
}

func TestWatch_IgnoresEmptyAndInvalid(t *testing.T) {
	p := writeConfig(t, "log:\n  level: warn\n")
	reloaded := startWatch(t, p)

	for _, content := range []string{"", "   \n", "max_index: 500\n"} {
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(4 * settleDelay)
	}
	select {
	case c := <-reloaded:
		t.Fatalf("unexpected reload with %+v", c.Log)
	default:
	}

	if err := os.WriteFile(p, []byte("log:\n  level: error\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitForLevel(t, reloaded, "error")
}

func TestWatch_CoalescesBurst(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")
	reloaded := startWatch(t, p)

	for _, lvl := range []string{"warn", "error", "debug"} {
		if err := os.WriteFile(p, []byte("log:\n  level: "+lvl+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	waitForLevel(t, reloaded, "debug")

	time.Sleep(4 * settleDelay)
	if n := len(reloaded); n != 0 {
		t.Errorf("got %d extra reloads after the burst settled", n)
	}
}

func TestWatch_AtomicRename(t *testing.T) {
	p := writeConfig(t, "log:\n  level: info\n")
	reloaded := startWatch(t, p)

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte("log:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, p); err != nil {
		t.Fatal(err)
	}
	waitForLevel(t, reloaded, "debug")
}

func TestRedisRedacted(t *testing.T) {
	r := RedisConfig{URL: "redis://:hunter2@cache:6379/0"}
	if got := r.Redacted(); strings.Contains(got, "hunter2") {
		t.Errorf("password not redacted: %s", got)
	}
	r = RedisConfig{Host: "cache", Port: 6379, Password: "hunter2"}
	if got := r.Redacted(); got != "cache:6379" {
		t.Errorf("got %s, want cache:6379", got)
	}
}
