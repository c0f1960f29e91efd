// Package backend provides the shared stores behind the remote-durable
// cache tier: a Postgres table and a Redis keyspace with the same row shape.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrUnsupported is returned by New for an unknown backend kind.
var ErrUnsupported = errors.New("backend: unsupported kind")

// Row is one persisted cache entry.
type Row struct {
	Key       string
	Data      json.RawMessage
	ExpiresAt time.Time
	CreatedAt time.Time
	Category  string
}

// Expired reports whether the row is past its expiry at now.
func (r Row) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Backend stores cache rows keyed by Row.Key.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get filters expired rows: an expired row is reported as absent.
// - Upsert replaces the row with the same key.
// - Delete and Truncate are idempotent. Delete reports whether a row was
//   removed.
type Backend interface {
	Get(ctx context.Context, key string, now time.Time) (Row, bool, error)
	Upsert(ctx context.Context, row Row) error
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteExpired removes rows whose expiry is not after now and reports
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Truncate removes every row.
	Truncate(ctx context.Context) error

	Ping(ctx context.Context) error
	Close() error
}
