package backend

import (
	"context"
	"fmt"
)

// Config selects and configures a backend.
type Config struct {
	Kind        string // postgres|redis
	PostgresDSN string
	Redis       RedisConfig
}

// Open constructs the backend named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Kind {
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case "redis":
		return OpenRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Kind)
	}
}
