// Package config loads tiercached settings from the environment.
//
// Load reads an optional .env file, parses TIERCACHE_* variables into a
// Config, resolves secret references in credential fields, and validates
// the result. The accessor methods translate the flat settings into the
// option structs of the cache, backend, fetch and observe packages.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jonwraymond/tiercache/backend"
	"github.com/jonwraymond/tiercache/fetch"
	"github.com/jonwraymond/tiercache/observe"
	"github.com/jonwraymond/tiercache/resilience"
	"github.com/jonwraymond/tiercache/secret"
)

// DefaultEnvFile is read by Load when no files are named.
const DefaultEnvFile = ".env"

var (
	ErrInvalidMemory  = errors.New("config: memory capacity must be positive")
	ErrInvalidQuota   = errors.New("config: local quota must be positive")
	ErrInvalidBackend = errors.New("config: unknown remote backend")
	ErrMissingDSN     = errors.New("config: postgres backend requires TIERCACHE_REMOTE_DSN")
	ErrInvalidFetch   = errors.New("config: invalid fetch defaults")
	ErrMissingSecret  = errors.New("config: admin API requires TIERCACHE_ADMIN_JWT_SECRET")
)

// Config is the full process configuration.
type Config struct {
	ServiceName string `env:"TIERCACHE_SERVICE_NAME" envDefault:"tiercache"`
	Version     string `env:"TIERCACHE_VERSION" envDefault:"dev"`

	// SweepInterval is how often expired entries are purged from every tier.
	SweepInterval time.Duration `env:"TIERCACHE_SWEEP_INTERVAL" envDefault:"5m"`

	Memory  MemoryConfig
	Local   LocalConfig
	Remote  RemoteConfig
	Fetch   FetchConfig
	Admin   AdminConfig
	Observe ObserveConfig
}

type MemoryConfig struct {
	Capacity int           `env:"TIERCACHE_MEMORY_CAPACITY" envDefault:"100"`
	TTL      time.Duration `env:"TIERCACHE_MEMORY_TTL" envDefault:"5m"`
}

type LocalConfig struct {
	Enabled bool `env:"TIERCACHE_LOCAL_ENABLED" envDefault:"true"`

	// Path is the SQLite file. Empty keeps the store in process memory.
	Path   string        `env:"TIERCACHE_LOCAL_PATH"`
	Quota  int64         `env:"TIERCACHE_LOCAL_QUOTA" envDefault:"5242880"`
	Prefix string        `env:"TIERCACHE_LOCAL_PREFIX" envDefault:"tiercache_"`
	TTL    time.Duration `env:"TIERCACHE_LOCAL_TTL" envDefault:"1h"`
}

type RemoteConfig struct {
	// Backend is postgres, redis, or empty to run without a remote tier.
	Backend string `env:"TIERCACHE_REMOTE_BACKEND"`

	DSN           string `env:"TIERCACHE_REMOTE_DSN"`
	RedisAddr     string `env:"TIERCACHE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"TIERCACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"TIERCACHE_REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"TIERCACHE_REDIS_PREFIX" envDefault:"unified_cache:"`

	TTL             time.Duration `env:"TIERCACHE_REMOTE_TTL" envDefault:"24h"`
	BreakerFailures int           `env:"TIERCACHE_REMOTE_BREAKER_FAILURES" envDefault:"5"`
	BreakerReset    time.Duration `env:"TIERCACHE_REMOTE_BREAKER_RESET" envDefault:"30s"`
}

type FetchConfig struct {
	BaseURL       string        `env:"TIERCACHE_FETCH_BASE_URL"`
	CacheTime     time.Duration `env:"TIERCACHE_FETCH_CACHE_TIME" envDefault:"5m"`
	Retries       int           `env:"TIERCACHE_FETCH_RETRIES" envDefault:"3"`
	RetryDelay    time.Duration `env:"TIERCACHE_FETCH_RETRY_DELAY" envDefault:"1s"`
	Backoff       string        `env:"TIERCACHE_FETCH_BACKOFF" envDefault:"constant"`
	Timeout       time.Duration `env:"TIERCACHE_FETCH_TIMEOUT" envDefault:"30s"`
	StaleIfError  bool          `env:"TIERCACHE_FETCH_STALE_IF_ERROR" envDefault:"true"`
	MaxConcurrent int           `env:"TIERCACHE_FETCH_MAX_CONCURRENT" envDefault:"6"`
	RateLimit     float64       `env:"TIERCACHE_FETCH_RATE_LIMIT" envDefault:"0"`
	RateBurst     int           `env:"TIERCACHE_FETCH_RATE_BURST" envDefault:"1"`
	StaleTTL      time.Duration `env:"TIERCACHE_FETCH_STALE_TTL" envDefault:"24h"`
	StaleCapacity int           `env:"TIERCACHE_FETCH_STALE_CAPACITY" envDefault:"100"`
}

type AdminConfig struct {
	Enabled bool   `env:"TIERCACHE_ADMIN_ENABLED" envDefault:"true"`
	Addr    string `env:"TIERCACHE_ADMIN_ADDR" envDefault:":8080"`

	JWTSecret   string `env:"TIERCACHE_ADMIN_JWT_SECRET"`
	JWTIssuer   string `env:"TIERCACHE_ADMIN_JWT_ISSUER"`
	JWTAudience string `env:"TIERCACHE_ADMIN_JWT_AUDIENCE"`
	Role        string `env:"TIERCACHE_ADMIN_ROLE" envDefault:"admin"`

	ShutdownTimeout time.Duration `env:"TIERCACHE_ADMIN_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type ObserveConfig struct {
	LogLevel        string  `env:"TIERCACHE_LOG_LEVEL" envDefault:"info"`
	TracingExporter string  `env:"TIERCACHE_TRACING_EXPORTER" envDefault:"none"`
	SamplePct       float64 `env:"TIERCACHE_TRACING_SAMPLE_PCT" envDefault:"1.0"`
	MetricsExporter string  `env:"TIERCACHE_METRICS_EXPORTER" envDefault:"none"`
	OTLPEndpoint    string  `env:"TIERCACHE_OTLP_ENDPOINT"`
	OTLPInsecure    bool    `env:"TIERCACHE_OTLP_INSECURE"`
}

// Load reads files (DefaultEnvFile when none are named) into the process
// environment, then parses and validates a Config. Missing env files are
// skipped; variables already set win over file values.
func Load(ctx context.Context, files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse(ctx, secret.NewResolver())
}

// Parse builds a Config from the current environment. Credential fields are
// resolved through resolver.
func Parse(ctx context.Context, resolver *secret.Resolver) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Remote.Backend = strings.ToLower(strings.TrimSpace(cfg.Remote.Backend))

	if resolver != nil {
		err := resolver.ResolveAll(ctx, map[string]*string{
			"TIERCACHE_REMOTE_DSN":       &cfg.Remote.DSN,
			"TIERCACHE_REDIS_PASSWORD":   &cfg.Remote.RedisPassword,
			"TIERCACHE_ADMIN_JWT_SECRET": &cfg.Admin.JWTSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Memory.Capacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMemory, c.Memory.Capacity)
	}
	if c.Local.Enabled && c.Local.Quota <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuota, c.Local.Quota)
	}

	switch c.Remote.Backend {
	case "", "redis":
	case "postgres", "postgresql":
		if c.Remote.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Remote.Backend)
	}

	switch {
	case c.Fetch.Retries < 0:
		return fmt.Errorf("%w: retries %d", ErrInvalidFetch, c.Fetch.Retries)
	case c.Fetch.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s", ErrInvalidFetch, c.Fetch.Timeout)
	case c.Fetch.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay %s", ErrInvalidFetch, c.Fetch.RetryDelay)
	case c.Fetch.RateLimit < 0:
		return fmt.Errorf("%w: rate limit %v", ErrInvalidFetch, c.Fetch.RateLimit)
	}
	switch c.Fetch.Backoff {
	case "constant", "linear", "exponential":
	default:
		return fmt.Errorf("%w: backoff %q", ErrInvalidFetch, c.Fetch.Backoff)
	}

	if c.Admin.Enabled && c.Admin.JWTSecret == "" {
		return ErrMissingSecret
	}

	obs := c.ObserveConfig()
	return obs.Validate()
}

// RemoteEnabled reports whether a remote backend is configured.
func (c *Config) RemoteEnabled() bool { return c.Remote.Backend != "" }

// BackendConfig returns the settings for backend.Open.
func (c *Config) BackendConfig() backend.Config {
	return backend.Config{
		Kind:        c.Remote.Backend,
		PostgresDSN: c.Remote.DSN,
		Redis: backend.RedisConfig{
			Address:  c.Remote.RedisAddr,
			Password: c.Remote.RedisPassword,
			DB:       c.Remote.RedisDB,
			Prefix:   c.Remote.RedisPrefix,
		},
	}
}

// FetchOptions returns the per-request defaults for fetch.Config.Defaults.
func (c *Config) FetchOptions() []fetch.Option {
	return []fetch.Option{
		fetch.WithCacheTime(c.Fetch.CacheTime),
		fetch.WithRetries(c.Fetch.Retries),
		fetch.WithRetryDelay(c.Fetch.RetryDelay),
		fetch.WithBackoff(resilience.ParseBackoff(c.Fetch.Backoff)),
		fetch.WithTimeout(c.Fetch.Timeout),
		fetch.WithStaleIfError(c.Fetch.StaleIfError),
	}
}

// ObserveConfig returns the telemetry settings.
func (c *Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.ServiceName,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracingExporter != "none",
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsExporter != "none",
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Observe.LogLevel,
		},
		OTLP: observe.OTLPConfig{
			Endpoint: c.Observe.OTLPEndpoint,
			Insecure: c.Observe.OTLPInsecure,
		},
	}
}
