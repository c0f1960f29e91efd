// Package localstore provides the string key/value storage that backs the
// client-durable cache tier.
//
// A Store behaves like a browser's localStorage: flat string keys, string
// values, and a byte quota that rejects writes once it is reached.
package localstore

import (
	"context"
	"errors"
)

// DefaultQuota is the default byte budget, counted as len(key)+len(value).
const DefaultQuota int64 = 5 << 20

var (
	// ErrQuotaExceeded is returned by Set when the write would exceed the quota.
	ErrQuotaExceeded = errors.New("localstore: quota exceeded")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("localstore: store is closed")
)

// Store is a quota-limited string key/value store.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get returns ("", false, nil) for an absent key.
// - Set replaces any existing value; the old value's size is released first.
// - Delete is idempotent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	// Keys lists keys that start with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Usage reports the bytes currently charged against the quota.
	Usage(ctx context.Context) (int64, error)

	// Quota is the configured byte budget.
	Quota() int64

	Ping(ctx context.Context) error
	Close() error
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
