package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/tiercache/localstore"
	"github.com/jonwraymond/tiercache/observe"
)

// DefaultLocalPrefix namespaces this cache's keys inside a shared store.
const DefaultLocalPrefix = "tiercache_"

const envelopeVersion = "1.0"

// envelope is the persisted form of a local entry. Times are epoch milliseconds.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Expiry    int64           `json:"expiry"`
	Timestamp int64           `json:"timestamp"`
	Version   string          `json:"version"`
}

// LocalConfig configures a LocalTier.
type LocalConfig struct {
	// Store is the backing key/value store (required).
	Store localstore.Store

	// Prefix is prepended to every key. Default: "tiercache_"
	Prefix string

	// Policy supplies the TTL. Default TTL: 1 hour
	Policy Policy

	Logger observe.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// LocalTier persists JSON envelopes in a quota-limited local store.
type LocalTier struct {
	store  localstore.Store
	prefix string
	policy Policy
	logger observe.Logger
	now    func() time.Time

	stats counters
}

// NewLocalTier creates a local tier over cfg.Store.
func NewLocalTier(cfg LocalConfig) (*LocalTier, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: local store is required", ErrNilTier)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultLocalPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &LocalTier{
		store:  cfg.Store,
		prefix: cfg.Prefix,
		policy: cfg.Policy.withDefault(DefaultLocalTTL),
		logger: observe.OrNop(cfg.Logger).With(observe.F("tier", "local")),
		now:    cfg.Now,
	}, nil
}

func (l *LocalTier) Name() string { return "local" }

// Get returns the stored payload as a json.RawMessage. Corrupt and expired
// entries are removed and reported as misses.
func (l *LocalTier) Get(ctx context.Context, key string) (any, bool) {
	v, _, ok := l.GetEntry(ctx, key)
	return v, ok
}

// GetEntry is Get plus the entry's expiry.
func (l *LocalTier) GetEntry(ctx context.Context, key string) (any, time.Time, bool) {
	raw, ok, err := l.store.Get(ctx, l.prefix+key)
	if err != nil {
		l.logger.Warn(ctx, "local read failed", observe.F("key", key), observe.Err(err))
		l.stats.miss()
		return nil, time.Time{}, false
	}
	if !ok {
		l.stats.miss()
		return nil, time.Time{}, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		l.logger.Warn(ctx, "removing corrupt local entry", observe.F("key", key), observe.Err(err))
		l.remove(ctx, key)
		l.stats.miss()
		return nil, time.Time{}, false
	}
	if l.now().UnixMilli() > env.Expiry {
		l.remove(ctx, key)
		l.stats.miss()
		return nil, time.Time{}, false
	}

	l.stats.hit()
	return env.Data, time.UnixMilli(env.Expiry), true
}

// Set writes value as a JSON envelope. When the store is full, expired
// entries are swept and the write is retried once; if it still does not fit
// the write is dropped.
func (l *LocalTier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return tierErr(l.Name(), "set", err)
	}

	now := l.now()
	encoded, err := json.Marshal(envelope{
		Data:      data,
		Expiry:    now.Add(l.policy.EffectiveTTL(ttl)).UnixMilli(),
		Timestamp: now.UnixMilli(),
		Version:   envelopeVersion,
	})
	if err != nil {
		return tierErr(l.Name(), "set", err)
	}

	storeKey := l.prefix + key
	err = l.store.Set(ctx, storeKey, string(encoded))
	if errors.Is(err, localstore.ErrQuotaExceeded) {
		if _, cerr := l.Cleanup(ctx); cerr != nil {
			l.logger.Warn(ctx, "cleanup after quota failure", observe.Err(cerr))
		}
		err = l.store.Set(ctx, storeKey, string(encoded))
		if errors.Is(err, localstore.ErrQuotaExceeded) {
			l.logger.Warn(ctx, "local quota exceeded, write dropped",
				observe.F("key", key), observe.F("bytes", len(encoded)))
			return nil
		}
	}
	return tierErr(l.Name(), "set", err)
}

func (l *LocalTier) Delete(ctx context.Context, key string) error {
	return tierErr(l.Name(), "delete", l.store.Delete(ctx, l.prefix+key))
}

// Remove deletes key and reports whether it was stored.
func (l *LocalTier) Remove(ctx context.Context, key string) (bool, error) {
	_, ok, err := l.store.Get(ctx, l.prefix+key)
	if err != nil {
		return false, tierErr(l.Name(), "delete", err)
	}
	if !ok {
		return false, nil
	}
	return true, l.Delete(ctx, key)
}

// Clear removes every key under the tier's prefix and resets the counters.
// Keys outside the prefix are left alone.
func (l *LocalTier) Clear(ctx context.Context) error {
	keys, err := l.store.Keys(ctx, l.prefix)
	if err != nil {
		return tierErr(l.Name(), "clear", err)
	}
	for _, k := range keys {
		if err := l.store.Delete(ctx, k); err != nil {
			return tierErr(l.Name(), "clear", err)
		}
	}
	l.stats.reset()
	return nil
}

// Cleanup removes expired and unreadable entries under the prefix.
func (l *LocalTier) Cleanup(ctx context.Context) (int, error) {
	keys, err := l.store.Keys(ctx, l.prefix)
	if err != nil {
		return 0, tierErr(l.Name(), "cleanup", err)
	}

	nowMs := l.now().UnixMilli()
	removed := 0
	for _, k := range keys {
		raw, ok, err := l.store.Get(ctx, k)
		if err != nil {
			return removed, tierErr(l.Name(), "cleanup", err)
		}
		if !ok {
			continue
		}
		env, err := decodeEnvelope(raw)
		if err == nil && nowMs <= env.Expiry {
			continue
		}
		if err := l.store.Delete(ctx, k); err != nil {
			return removed, tierErr(l.Name(), "cleanup", err)
		}
		removed++
	}
	return removed, nil
}

func (l *LocalTier) Stats() Stats {
	return l.stats.snapshot()
}

// Policy returns the tier's TTL policy.
func (l *LocalTier) Policy() Policy { return l.policy }

// Ping checks the backing store.
func (l *LocalTier) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Usage reports the bytes charged against the store quota, and the quota.
// The figures cover the whole store, including keys outside this tier's prefix.
func (l *LocalTier) Usage(ctx context.Context) (used, quota int64, err error) {
	used, err = l.store.Usage(ctx)
	if err != nil {
		return 0, 0, err
	}
	return used, l.store.Quota(), nil
}

func (l *LocalTier) remove(ctx context.Context, key string) {
	if err := l.store.Delete(ctx, l.prefix+key); err != nil {
		l.logger.Warn(ctx, "local delete failed", observe.F("key", key), observe.Err(err))
	}
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	if len(env.Data) == 0 || env.Expiry == 0 {
		return envelope{}, errors.New("incomplete envelope")
	}
	return env, nil
}

// marshalValue encodes value as JSON, passing already-encoded JSON through.
func marshalValue(value any) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("invalid JSON payload")
		}
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		return b, nil
	}
}

var (
	_ Tier        = (*LocalTier)(nil)
	_ EntryReader = (*LocalTier)(nil)
	_ Remover     = (*LocalTier)(nil)
)
