package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 512

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")
	ErrNilTier    = errors.New("cache: tier is nil")
)

// Entry is a value held by the memory tier.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Tier is one storage level of the cache.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get never errors; any failure is a miss.
// - Expired entries are never returned.
// - Set with ttl <= 0 uses the tier's default TTL.
// - Delete is idempotent.
type Tier interface {
	// Name identifies the tier in logs, metrics and stats.
	Name() string

	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// Clear empties the tier. Durable tiers may restrict this to their
	// own namespace or to expired rows; see each implementation.
	Clear(ctx context.Context) error

	// Cleanup removes expired entries and reports how many were removed.
	Cleanup(ctx context.Context) (int, error)

	Stats() Stats
}

// Remover is implemented by tiers that can report whether a delete removed
// a stored entry.
type Remover interface {
	Remove(ctx context.Context, key string) (bool, error)
}

// EntryReader is implemented by tiers that can report when a hit expires.
// Manager uses it so a promoted value never outlives its source entry.
type EntryReader interface {
	GetEntry(ctx context.Context, key string) (value any, expiresAt time.Time, ok bool)
}

// ValidateKey checks if a key is valid for caching.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}
