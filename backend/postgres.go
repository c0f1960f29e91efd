package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the unified_cache table and its expiry index.
const Schema = `
CREATE TABLE IF NOT EXISTS unified_cache (
    cache_key  TEXT PRIMARY KEY,
    cache_data JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    category   TEXT NOT NULL DEFAULT 'general'
);
CREATE INDEX IF NOT EXISTS unified_cache_expires_at_idx ON unified_cache (expires_at);
`

// Postgres stores rows in the unified_cache table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and applies Schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool. The caller is responsible for Schema.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, key string, now time.Time) (Row, bool, error) {
	var row Row
	err := p.pool.QueryRow(ctx,
		`SELECT cache_key, cache_data, expires_at, created_at, category
		   FROM unified_cache
		  WHERE cache_key = $1 AND expires_at > $2`,
		key, now,
	).Scan(&row.Key, &row.Data, &row.ExpiresAt, &row.CreatedAt, &row.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("select %q: %w", key, err)
	}
	return row, true, nil
}

func (p *Postgres) Upsert(ctx context.Context, row Row) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO unified_cache (cache_key, cache_data, expires_at, created_at, category)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cache_key) DO UPDATE
		    SET cache_data = EXCLUDED.cache_data,
		        expires_at = EXCLUDED.expires_at,
		        created_at = EXCLUDED.created_at,
		        category   = EXCLUDED.category`,
		row.Key, row.Data, row.ExpiresAt, row.CreatedAt, row.Category,
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", row.Key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM unified_cache WHERE cache_key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM unified_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) Truncate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE unified_cache`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Backend = (*Postgres)(nil)
