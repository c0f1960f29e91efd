package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonwraymond/tiercache/backend"
	"github.com/jonwraymond/tiercache/observe"
	"github.com/jonwraymond/tiercache/resilience"
)

// CategoryFunc derives the category column of a remote row from its key.
type CategoryFunc func(key string) string

// DefaultCategory tags keys mentioning pokemon, cards/tcg or prices.
func DefaultCategory(key string) string {
	switch {
	case strings.Contains(key, "pokemon"):
		return "pokemon"
	case strings.Contains(key, "card"), strings.Contains(key, "tcg"):
		return "cards"
	case strings.Contains(key, "price"):
		return "prices"
	default:
		return "general"
	}
}

// RemoteFailure reports whether err should count against the remote
// backend's circuit. A caller giving up is not a backend failure.
func RemoteFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// RemoteConfig configures a RemoteTier.
type RemoteConfig struct {
	// Backend is the shared store (required).
	Backend backend.Backend

	// Policy supplies the TTL. Default TTL: 24 hours
	Policy Policy

	// Category tags rows. Default: DefaultCategory
	Category CategoryFunc

	// Breaker guards backend calls. Default: 5 failures, 30s reset.
	Breaker *resilience.CircuitBreaker

	Logger observe.Logger

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// RemoteTier stores entries in a shared backend.
//
// Every backend call goes through a circuit breaker; while it is open the
// tier answers misses and drops writes without touching the backend.
type RemoteTier struct {
	backend  backend.Backend
	policy   Policy
	category CategoryFunc
	breaker  *resilience.CircuitBreaker
	logger   observe.Logger
	now      func() time.Time

	stats counters
}

// NewRemoteTier creates a remote tier over cfg.Backend.
func NewRemoteTier(cfg RemoteConfig) (*RemoteTier, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("%w: remote backend is required", ErrNilTier)
	}
	if cfg.Category == nil {
		cfg.Category = DefaultCategory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := observe.OrNop(cfg.Logger).With(observe.F("tier", "remote"))
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			IsFailure: RemoteFailure,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "remote circuit changed",
					observe.F("from", from.String()), observe.F("to", to.String()))
			},
		})
	}

	return &RemoteTier{
		backend:  cfg.Backend,
		policy:   cfg.Policy.withDefault(DefaultRemoteTTL),
		category: cfg.Category,
		breaker:  cfg.Breaker,
		logger:   logger,
		now:      cfg.Now,
	}, nil
}

func (r *RemoteTier) Name() string { return "remote" }

// Get returns the stored payload as a json.RawMessage.
func (r *RemoteTier) Get(ctx context.Context, key string) (any, bool) {
	v, _, ok := r.GetEntry(ctx, key)
	return v, ok
}

// GetEntry is Get plus the row's expiry.
func (r *RemoteTier) GetEntry(ctx context.Context, key string) (any, time.Time, bool) {
	var (
		row backend.Row
		ok  bool
	)
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		row, ok, err = r.backend.Get(ctx, key, r.now())
		return err
	})
	if err != nil {
		r.logFault(ctx, "get", key, err)
		r.stats.miss()
		return nil, time.Time{}, false
	}
	if !ok {
		r.stats.miss()
		return nil, time.Time{}, false
	}

	r.stats.hit()
	return row.Data, row.ExpiresAt, true
}

func (r *RemoteTier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return tierErr(r.Name(), "set", err)
	}

	now := r.now()
	row := backend.Row{
		Key:       key,
		Data:      data,
		ExpiresAt: now.Add(r.policy.EffectiveTTL(ttl)),
		CreatedAt: now,
		Category:  r.category(key),
	}
	return tierErr(r.Name(), "set", r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.backend.Upsert(ctx, row)
	}))
}

func (r *RemoteTier) Delete(ctx context.Context, key string) error {
	_, err := r.Remove(ctx, key)
	return err
}

// Remove deletes the row for key and reports whether one existed.
func (r *RemoteTier) Remove(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		removed, err = r.backend.Delete(ctx, key)
		return err
	})
	return removed, tierErr(r.Name(), "delete", err)
}

// Clear removes only expired rows; the table is shared with other
// processes. Use Purge to wipe it.
func (r *RemoteTier) Clear(ctx context.Context) error {
	_, err := r.Cleanup(ctx)
	return err
}

// Cleanup removes rows past their expiry.
func (r *RemoteTier) Cleanup(ctx context.Context) (int, error) {
	var removed int64
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		removed, err = r.backend.DeleteExpired(ctx, r.now())
		return err
	})
	return int(removed), tierErr(r.Name(), "cleanup", err)
}

// Purge removes every row and resets the counters.
func (r *RemoteTier) Purge(ctx context.Context) error {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.backend.Truncate(ctx)
	})
	if err != nil {
		return tierErr(r.Name(), "purge", err)
	}
	r.stats.reset()
	return nil
}

func (r *RemoteTier) Stats() Stats {
	return r.stats.snapshot()
}

// Policy returns the tier's TTL policy.
func (r *RemoteTier) Policy() Policy { return r.policy }

// Ping checks the backend, bypassing the breaker.
func (r *RemoteTier) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

// Breaker exposes the circuit breaker for health reporting.
func (r *RemoteTier) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}

func (r *RemoteTier) logFault(ctx context.Context, op, key string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		r.logger.Debug(ctx, "remote circuit open", observe.F("op", op), observe.F("key", key))
		return
	}
	r.logger.Warn(ctx, "remote "+op+" failed", observe.F("key", key), observe.Err(err))
}

var (
	_ Tier        = (*RemoteTier)(nil)
	_ EntryReader = (*RemoteTier)(nil)
	_ Remover     = (*RemoteTier)(nil)
)
