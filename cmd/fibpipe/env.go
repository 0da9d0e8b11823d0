package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"fibpipe/pkg/cache"
	"fibpipe/pkg/channel"
	"fibpipe/pkg/config"
	"fibpipe/pkg/ingest"
	"fibpipe/pkg/observe"
	"fibpipe/pkg/ready"
	"fibpipe/pkg/store"
	"fibpipe/pkg/worker"
)

// env holds the configuration, logging and collaborators of one running
// command. Collaborators are opened lazily and shared, so the standalone
// command hands the same in-memory cache, broker and store to both tiers.
type env struct {
	opts     *RootOptions
	cfg      *config.Config
	level    *slog.LevelVar
	logger   *slog.Logger
	registry *prometheus.Registry
	observer observe.Observer
	monitor  *ready.Monitor

	cache     cache.Cache
	store     store.Store
	publisher channel.Publisher
	broker    *channel.Broker
	pool      *pgxpool.Pool

	closers []func()
}

// setup loads configuration and installs the JSON logger as the default.
func setup(opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	if opts.LogLevel != "" {
		level.Set(config.LogConfig{Level: opts.LogLevel}.SlogLevel())
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	otelObserver, err := observe.NewOTelObserver(otel.Tracer("fibpipe"), otel.Meter("fibpipe"))
	if err != nil {
		return nil, fmt.Errorf("otel observer: %w", err)
	}

	return &env{
		opts:     opts,
		cfg:      cfg,
		level:    level,
		logger:   logger,
		registry: registry,
		observer: &observe.MultiObserver{Observers: []observe.Observer{
			observe.NewSlogObserver(logger),
			observe.NewPrometheusObserver(cfg.Metrics.Namespace, registry),
			otelObserver,
		}},
		monitor: ready.NewMonitor(cfg.HealthInterval, 0, logger),
	}, nil
}

func (e *env) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

// Close releases collaborators in reverse order of opening.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// logStartup reports the effective endpoints. Passwords are masked.
func (e *env) logStartup(ctx context.Context, role string) {
	e.logger.InfoContext(ctx, "fibpipe starting",
		"role", role,
		"config", e.opts.ConfigPath,
		"http_addr", e.cfg.HTTP.Addr,
		"metrics_addr", e.cfg.Metrics.Addr,
		"cache", e.cfg.Cache.Driver,
		"redis", e.cfg.Redis.Redacted(),
		"store", e.cfg.Store.Driver,
		"postgres", e.cfg.Postgres.Redacted(),
		"channel", e.cfg.Channel.Driver,
		"topic", e.cfg.Channel.Topic,
		"max_index", e.cfg.MaxIndex,
	)
}

// watchConfig reloads the log level when the config file changes.
func (e *env) watchConfig(ctx context.Context) {
	if e.opts.ConfigPath == "" {
		return
	}
	go func() {
		err := config.Watch(ctx, e.opts.ConfigPath, func(cfg *config.Config) {
			if e.opts.LogLevel != "" {
				return
			}
			e.level.Set(cfg.Log.SlogLevel())
		})
		if err != nil {
			e.logger.WarnContext(ctx, "config watch disabled", "err", err)
		}
	}()
}

// serveMetrics exposes the Prometheus registry until ctx is done.
func (e *env) serveMetrics(ctx context.Context) error {
	if e.cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry}))
	return serveHTTP(ctx, "metrics", e.cfg.Metrics.Addr, mux, e.logger)
}

// --- collaborators ----------------------------------------------------------

func (e *env) redisClient(role string) (*redis.Client, error) {
	rc := e.cfg.Redis

	var opts *redis.Options
	if rc.URL != "" {
		var err error
		opts, err = redis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
	} else {
		opts = &redis.Options{
			Addr:     rc.Addr(),
			Password: rc.Password,
			DB:       rc.DB,
		}
		if rc.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: rc.Host}
		}
	}
	opts.ClientName = "fibpipe-" + role

	client := redis.NewClient(opts)
	e.onClose(func() { client.Close() })
	return client, nil
}

func (e *env) postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := pgxpool.New(ctx, e.cfg.Postgres.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to configure postgres pool: %w", err)
	}
	e.pool = pool
	e.onClose(pool.Close)
	return pool, nil
}

func (e *env) memoryBroker() *channel.Broker {
	if e.broker == nil {
		e.broker = channel.NewBroker(e.cfg.Channel.Topic, 0)
	}
	return e.broker
}

// openCache returns the shared cache, registering it with the monitor.
func (e *env) openCache() (cache.Cache, error) {
	if e.cache != nil {
		return e.cache, nil
	}

	switch e.cfg.Cache.Driver {
	case "memory":
		e.cache = cache.NewInMemoryCache()
	default:
		client, err := e.redisClient("cache")
		if err != nil {
			return nil, err
		}
		e.cache = cache.NewRedisCache(client, e.cfg.Redis.Hash)
	}
	e.monitor.Add("cache", e.cache)
	return e.cache, nil
}

// rawStore opens the configured store without schema bootstrap.
func (e *env) rawStore(ctx context.Context) (store.Store, error) {
	table := e.cfg.Store.Table

	switch e.cfg.Store.Driver {
	case "memory":
		return store.NewInMemoryStore(), nil
	case "sqlite":
		return e.sqlStore("sqlite3", store.DialectSQLite, table)
	case "mysql":
		return e.sqlStore("mysql", store.DialectMySQL, table)
	default:
		pool, err := e.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(pool, table), nil
	}
}

func (e *env) sqlStore(driver string, dialect store.SQLDialect, table string) (store.Store, error) {
	db, err := sql.Open(driver, e.cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	e.onClose(func() { db.Close() })
	return store.NewSQLStore(db, table, dialect), nil
}

// openStore returns the shared store. Its schema is created after the
// first successful ping, and it reports not ready until then.
func (e *env) openStore(ctx context.Context) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}
	raw, err := e.rawStore(ctx)
	if err != nil {
		return nil, err
	}
	s := newBootstrapStore(raw, e.logger)
	e.store = s
	e.monitor.Add("store", s)
	return s, nil
}

// openPublisher returns the API-side channel handle.
func (e *env) openPublisher(ctx context.Context) (channel.Publisher, error) {
	if e.publisher != nil {
		return e.publisher, nil
	}

	switch e.cfg.Channel.Driver {
	case "memory":
		e.publisher = e.memoryBroker()
	case "river":
		pool, err := e.postgresPool(ctx)
		if err != nil {
			return nil, err
		}
		rc, err := channel.NewRiverChannel(pool, e.cfg.Channel.Topic)
		if err != nil {
			return nil, err
		}
		e.publisher = rc
	default:
		client, err := e.redisClient("publisher")
		if err != nil {
			return nil, err
		}
		e.publisher = channel.NewRedisChannel(client, e.cfg.Channel.Topic)
	}
	e.monitor.Add("publisher", e.publisher)
	return e.publisher, nil
}

// openSubscriber returns the worker-side channel handle. The river driver
// has none; its jobs are worked by worker.RunRiver.
func (e *env) openSubscriber() (channel.Subscriber, error) {
	switch e.cfg.Channel.Driver {
	case "memory":
		return e.memoryBroker(), nil
	case "river":
		return nil, nil
	default:
		client, err := e.redisClient("subscriber")
		if err != nil {
			return nil, err
		}
		rc := channel.NewRedisChannel(client, e.cfg.Channel.Topic)
		e.monitor.Add("subscriber", rc)
		return rc, nil
	}
}

func (e *env) ingestService(ctx context.Context) (*ingest.Service, error) {
	c, err := e.openCache()
	if err != nil {
		return nil, err
	}
	p, err := e.openPublisher(ctx)
	if err != nil {
		return nil, err
	}
	s, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}

	return ingest.New(c, p, s,
		ingest.WithMaxIndex(e.cfg.MaxIndex),
		ingest.WithTimeouts(ingest.Timeouts{
			Cache:   e.cfg.Timeouts.Cache,
			Channel: e.cfg.Timeouts.Channel,
			Store:   e.cfg.Timeouts.Store,
		}),
		ingest.WithObserver(e.observer),
	), nil
}

// newWorker builds a worker bounded by the same max_index as the API.
func (e *env) newWorker(sub channel.Subscriber, c cache.Cache) *worker.Worker {
	return worker.New(sub, c, worker.Config{
		MaxIndex:     e.cfg.MaxIndex,
		CacheTimeout: e.cfg.Timeouts.Cache,
		Observer:     e.observer,
		Logger:       e.logger,
	})
}

// runWorker blocks processing deliveries until ctx is done.
func (e *env) runWorker(ctx context.Context) error {
	c, err := e.openCache()
	if err != nil {
		return err
	}
	sub, err := e.openSubscriber()
	if err != nil {
		return err
	}

	w := e.newWorker(sub, c)

	if e.cfg.Channel.Driver == "river" {
		pool, err := e.postgresPool(ctx)
		if err != nil {
			return err
		}
		return worker.RunRiver(ctx, pool, w, e.cfg.Channel.Topic)
	}

	if err := w.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return errors.New("worker: subscription closed")
	}
	return nil
}

// serveHTTP runs an HTTP server until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, name, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "HTTP server listening", "server", name, "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
