// Package config loads fibpipe configuration from an optional YAML file and
// the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables. The environment names match the container deployment:
//
//	REDIS_URL                          full Redis URL, overrides host/port
//	REDIS_HOST, REDIS_PORT             Redis endpoint
//	DATABASE_URL                       Postgres URL, overrides PG*
//	PGHOST, PGPORT, PGUSER,
//	PGPASSWORD, PGDATABASE             Postgres connection parts
//	FIBPIPE_MAX_INDEX                  largest accepted index
//	FIBPIPE_LOG_LEVEL                  debug | info | warn | error
//	FIBPIPE_CACHE_DRIVER               redis | memory
//	FIBPIPE_STORE_DRIVER, _STORE_DSN   durable store selection
//	FIBPIPE_CHANNEL_DRIVER             redis | river | memory
//	FIBPIPE_HTTP_ADDR                  API listen address
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fibpipe/pkg/fib"
)

// Default values.
const (
	DefaultHTTPAddr    = ":5000"
	DefaultMetricsAddr = ":2112"
	DefaultRedisHost   = "localhost"
	DefaultRedisPort   = 6379
	DefaultPGHost      = "localhost"
	DefaultPGPort      = 5432
	DefaultPGUser      = "postgres"
	DefaultPGDatabase  = "postgres"
	DefaultTopic       = "insert"
	DefaultHash        = "values"
	DefaultTable       = "values"
)

// Config is the complete configuration shared by every command.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Store    StoreConfig    `yaml:"store"`
	Channel  ChannelConfig  `yaml:"channel"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Log      LogConfig      `yaml:"log"`

	// MaxIndex is the largest accepted index, 1 to 92 (default 40).
	MaxIndex int `yaml:"max_index"`

	// HealthInterval is how often collaborators are pinged (default 5s).
	HealthInterval time.Duration `yaml:"health_interval"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MetricsConfig controls the Prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// CacheConfig selects the cache.
type CacheConfig struct {
	// Driver is one of: redis | memory.
	Driver string `yaml:"driver"`
}

// RedisConfig describes the cache and Pub/Sub server.
type RedisConfig struct {
	// URL, when set, takes precedence over Host/Port/Password/TLS.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`

	// Hash is the hash holding cached values (default "values").
	Hash string `yaml:"hash"`
}

// PostgresConfig describes the Postgres server used by the postgres store
// driver and the river channel driver.
type PostgresConfig struct {
	// URL, when set, takes precedence over the individual fields.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// StoreConfig selects the durable store.
type StoreConfig struct {
	// Driver is one of: postgres | sqlite | mysql | memory.
	Driver string `yaml:"driver"`

	// DSN is the database/sql data source for sqlite and mysql.
	DSN string `yaml:"dsn"`

	// Table holds accepted indices (default "values").
	Table string `yaml:"table"`
}

// ChannelConfig selects the notification transport.
type ChannelConfig struct {
	// Driver is one of: redis | river | memory.
	Driver string `yaml:"driver"`

	// Topic is the Pub/Sub channel (redis) or River queue (river).
	Topic string `yaml:"topic"`
}

// TimeoutsConfig bounds each collaborator call.
type TimeoutsConfig struct {
	Cache   time.Duration `yaml:"cache"`
	Channel time.Duration `yaml:"channel"`
	Store   time.Duration `yaml:"store"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level to a slog.Level. Unknown values map to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Redacted describes the Redis endpoint for logging, with any password
// masked.
func (r RedisConfig) Redacted() string {
	if r.URL == "" {
		return r.Addr()
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// ConnString returns a pgx connection string.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}
	if p.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(p.SSLMode)
	}
	return u.String()
}

// Redacted returns ConnString with the password masked, for logging.
func (p PostgresConfig) Redacted() string {
	u, err := url.Parse(p.ConnString())
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}
	return parse(data)
}

// parse layers data (possibly empty) and the environment over the defaults.
func parse(data []byte) (*Config, error) {
	cfg := defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		HTTP:    HTTPConfig{Addr: DefaultHTTPAddr},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr, Namespace: "fibpipe"},
		Cache:   CacheConfig{Driver: "redis"},
		Redis: RedisConfig{
			Host: DefaultRedisHost,
			Port: DefaultRedisPort,
			Hash: DefaultHash,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  "disable",
		},
		Store:   StoreConfig{Driver: "postgres", Table: DefaultTable},
		Channel: ChannelConfig{Driver: "redis", Topic: DefaultTopic},
		Timeouts: TimeoutsConfig{
			Cache:   2 * time.Second,
			Channel: 2 * time.Second,
			Store:   5 * time.Second,
		},
		Log:            LogConfig{Level: "info"},
		MaxIndex:       fib.DefaultMaxIndex,
		HealthInterval: 5 * time.Second,
	}
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s=%q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_HOST", &cfg.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("DATABASE_URL", &cfg.Postgres.URL)
	str("PGHOST", &cfg.Postgres.Host)
	str("PGUSER", &cfg.Postgres.User)
	str("PGPASSWORD", &cfg.Postgres.Password)
	str("PGDATABASE", &cfg.Postgres.Database)
	str("PGSSLMODE", &cfg.Postgres.SSLMode)
	str("FIBPIPE_LOG_LEVEL", &cfg.Log.Level)
	str("FIBPIPE_CACHE_DRIVER", &cfg.Cache.Driver)
	str("FIBPIPE_STORE_DRIVER", &cfg.Store.Driver)
	str("FIBPIPE_STORE_DSN", &cfg.Store.DSN)
	str("FIBPIPE_CHANNEL_DRIVER", &cfg.Channel.Driver)
	str("FIBPIPE_HTTP_ADDR", &cfg.HTTP.Addr)

	return errors.Join(
		num("REDIS_PORT", &cfg.Redis.Port),
		num("PGPORT", &cfg.Postgres.Port),
		num("FIBPIPE_MAX_INDEX", &cfg.MaxIndex),
	)
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	// worker.Config reads a zero MaxIndex as the default, so 0 is not a bound.
	if cfg.MaxIndex < 1 || cfg.MaxIndex > fib.MaxComputable {
		return fmt.Errorf("max_index %d is out of range [1, %d]", cfg.MaxIndex, fib.MaxComputable)
	}
	if cfg.Redis.URL == "" && (cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535) {
		return fmt.Errorf("redis.port %d is out of range [1, 65535]", cfg.Redis.Port)
	}
	switch cfg.Cache.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("cache.driver %q unknown: want redis|memory", cfg.Cache.Driver)
	}
	switch cfg.Store.Driver {
	case "postgres", "memory":
	case "sqlite", "mysql":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver %q unknown: want postgres|sqlite|mysql|memory", cfg.Store.Driver)
	}
	switch cfg.Channel.Driver {
	case "redis", "river", "memory":
	default:
		return fmt.Errorf("channel.driver %q unknown: want redis|river|memory", cfg.Channel.Driver)
	}
	if cfg.Channel.Topic == "" {
		return errors.New("channel.topic must not be empty")
	}
	if cfg.Timeouts.Cache < 0 || cfg.Timeouts.Channel < 0 || cfg.Timeouts.Store < 0 {
		return errors.New("timeouts must not be negative")
	}
	if cfg.HealthInterval <= 0 {
		return errors.New("health_interval must be positive")
	}
	return nil
}
