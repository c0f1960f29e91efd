package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonwraymond/tiercache/observe"
)

// DefaultSweepInterval is how often Start runs Cleanup.
const DefaultSweepInterval = 5 * time.Minute

// ErrAlreadyStarted is returned by Start when the sweep is already running.
var ErrAlreadyStarted = errors.New("cache: manager already started")

// Purger is implemented by tiers whose Clear is deliberately partial and
// that offer a full wipe for operator use.
type Purger interface {
	Purge(ctx context.Context) error
}

// Config wires the tiers of a Manager. Local and Remote are optional; a
// nil tier is skipped by reads and writes.
type Config struct {
	Memory *MemoryTier
	Local  Tier
	Remote Tier

	Keyer Keyer

	// SweepInterval is the Cleanup period used by Start. Default: 5 minutes
	SweepInterval time.Duration

	Logger  observe.Logger
	Metrics observe.Metrics

	// Now is the clock used to compute remaining TTLs. Default: time.Now
	Now func() time.Time
}

// SetOptions controls how far a write propagates and how long it lives.
type SetOptions struct {
	// Priority selects the tiers written. Default: PriorityNormal
	Priority Priority

	// TTL overrides each tier's default TTL when positive.
	TTL time.Duration
}

// ManagerStats combines the manager's own counters with each tier's.
type ManagerStats struct {
	Requests int64   `json:"requests"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hitRate"`

	// Size, Entries and Capacity describe the memory tier. Size and Entries
	// both count its live entries.
	Size     int `json:"size"`
	Entries  int `json:"entries"`
	Capacity int `json:"capacity"`

	Tiers map[string]Stats `json:"tiers"`
}

// CleanupResult reports how many expired entries each tier removed.
type CleanupResult struct {
	Removed map[string]int `json:"removed"`
}

// Total is the number of entries removed across tiers.
func (r CleanupResult) Total() int {
	n := 0
	for _, v := range r.Removed {
		n += v
	}
	return n
}

// Manager coordinates reads and writes across the cache tiers.
//
// Construction starts nothing; call Start to run the periodic sweep and
// Stop to end it.
type Manager struct {
	memory *MemoryTier
	local  Tier
	remote Tier
	keyer  Keyer

	interval time.Duration
	logger   observe.Logger
	metrics  observe.Metrics
	now      func() time.Time

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64

	mu    sync.Mutex
	sweep *cron.Cron
}

// NewManager creates a Manager over the configured tiers. A nil Memory
// tier is replaced by a default one.
func NewManager(cfg Config) *Manager {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.Memory == nil {
		cfg.Memory = NewMemoryTier(MemoryConfig{Metrics: cfg.Metrics})
	}
	if cfg.Keyer == nil {
		cfg.Keyer = NewDefaultKeyer()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		memory:   cfg.Memory,
		local:    nilIfTypedNil(cfg.Local),
		remote:   nilIfTypedNil(cfg.Remote),
		keyer:    cfg.Keyer,
		interval: cfg.SweepInterval,
		logger:   observe.OrNop(cfg.Logger).With(observe.F("component", "cache")),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
}

// Get reads key through the tiers the priority allows, cheapest first. A
// hit in a slower tier is copied into every faster tier before returning.
func (m *Manager) Get(ctx context.Context, key string, prio Priority) (any, bool) {
	m.requests.Add(1)
	prio = clampPriority(prio)

	if v, _, ok := m.lookup(ctx, m.memory, key); ok {
		m.hits.Add(1)
		return v, true
	}

	if prio >= PriorityHigh && m.local != nil {
		if v, exp, ok := m.lookup(ctx, m.local, key); ok {
			m.promote(ctx, key, v, exp, m.memory)
			m.hits.Add(1)
			return v, true
		}
	}

	if prio >= PriorityCritical && m.remote != nil {
		if v, exp, ok := m.lookup(ctx, m.remote, key); ok {
			m.promote(ctx, key, v, exp, m.local, m.memory)
			m.hits.Add(1)
			return v, true
		}
	}

	m.misses.Add(1)
	return nil, false
}

// Has reports whether Get would hit. It counts as a request.
func (m *Manager) Has(ctx context.Context, key string, prio Priority) bool {
	_, ok := m.Get(ctx, key, prio)
	return ok
}

// Set writes value to memory and, depending on the priority, to the local
// and remote tiers. The memory write is complete when Set returns. Durable
// tier failures are logged, not returned; the only error is an invalid key.
func (m *Manager) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	prio := clampPriority(opts.Priority)

	_ = m.memory.Set(ctx, key, value, opts.TTL)

	if prio >= PriorityHigh && m.local != nil {
		m.logFault(ctx, "set", key, m.local.Set(ctx, key, value, opts.TTL))
	}
	if prio >= PriorityCritical && m.remote != nil {
		m.logFault(ctx, "set", key, m.remote.Set(ctx, key, value, opts.TTL))
	}
	return nil
}

// Delete removes key from every tier regardless of priority and reports
// whether any tier held it. A failing tier counts as not holding the key.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	deleted := false
	for _, t := range m.tiers() {
		r, ok := t.(Remover)
		if !ok {
			m.logFault(ctx, "delete", key, t.Delete(ctx, key))
			continue
		}
		removed, err := r.Remove(ctx, key)
		m.logFault(ctx, "delete", key, err)
		deleted = deleted || removed
	}
	return deleted
}

// Clear empties memory and local, wipes the remote tier entirely, and
// resets the manager counters.
func (m *Manager) Clear(ctx context.Context) {
	_ = m.memory.Clear(ctx)
	if m.local != nil {
		m.logFault(ctx, "clear", "", m.local.Clear(ctx))
	}
	if m.remote != nil {
		if p, ok := m.remote.(Purger); ok {
			m.logFault(ctx, "purge", "", p.Purge(ctx))
		} else {
			m.logFault(ctx, "clear", "", m.remote.Clear(ctx))
		}
	}
	m.ResetStats()
	m.logger.Info(ctx, "cache cleared")
}

// Cleanup sweeps expired entries from every tier. It is safe to call at
// any time, including concurrently with the periodic sweep.
func (m *Manager) Cleanup(ctx context.Context) CleanupResult {
	res := CleanupResult{Removed: make(map[string]int, 3)}
	for _, t := range m.tiers() {
		n, err := t.Cleanup(ctx)
		m.logFault(ctx, "cleanup", "", err)
		res.Removed[t.Name()] = n
	}
	m.logger.Debug(ctx, "cache cleanup finished", observe.F("removed", res.Total()))
	return res
}

// Start runs Cleanup every SweepInterval until Stop. ctx is used for the
// sweeps themselves; cancelling it does not stop the schedule.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sweep != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.logger})))
	if _, err := c.AddFunc("@every "+m.interval.String(), func() {
		m.Cleanup(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	m.sweep = c
	m.logger.Info(ctx, "cache sweep started", observe.F("interval", m.interval.String()))
	return nil
}

// Stop ends the periodic sweep and waits for a running sweep to finish.
// It is a no-op when the sweep is not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.sweep
	m.sweep = nil
	m.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// Running reports whether the periodic sweep is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep != nil
}

// Stats returns the manager counters plus a snapshot of every tier.
func (m *Manager) Stats() ManagerStats {
	hits, misses := m.hits.Load(), m.misses.Load()
	mem := m.memory.Stats()

	s := ManagerStats{
		Requests: m.requests.Load(),
		Hits:     hits,
		Misses:   misses,
		HitRate:  Stats{Hits: hits, Misses: misses}.HitRate(),
		Size:     mem.Size,
		Entries:  mem.Size,
		Capacity: mem.Capacity,
		Tiers:    make(map[string]Stats, 3),
	}
	for _, t := range m.tiers() {
		s.Tiers[t.Name()] = t.Stats()
	}
	return s
}

// ResetStats zeroes the manager counters. Tier counters are untouched.
func (m *Manager) ResetStats() {
	m.requests.Store(0)
	m.hits.Store(0)
	m.misses.Store(0)
}

// GenerateKey derives a cache key from an identifier and its parameters.
func (m *Manager) GenerateKey(identifier string, params map[string]any) (string, error) {
	return m.keyer.Key(identifier, params)
}

// Memory returns the memory tier.
func (m *Manager) Memory() *MemoryTier { return m.memory }

// Local returns the local tier, or nil.
func (m *Manager) Local() Tier { return m.local }

// Remote returns the remote tier, or nil.
func (m *Manager) Remote() Tier { return m.remote }

// lookup reads one tier. expiresAt is zero when the tier cannot report it.
func (m *Manager) lookup(ctx context.Context, t Tier, key string) (v any, expiresAt time.Time, ok bool) {
	if er, isEntry := t.(EntryReader); isEntry {
		v, expiresAt, ok = er.GetEntry(ctx, key)
	} else {
		v, ok = t.Get(ctx, key)
	}
	m.metrics.RecordLookup(ctx, t.Name(), ok)
	return v, expiresAt, ok
}

// promote copies a value found in a slower tier into faster ones. Each copy
// lives for the shorter of the source's remaining lifetime and the target's
// default TTL.
func (m *Manager) promote(ctx context.Context, key string, value any, expiresAt time.Time, into ...Tier) {
	var remaining time.Duration
	if !expiresAt.IsZero() {
		remaining = expiresAt.Sub(m.now())
		if remaining <= 0 {
			return
		}
	}

	for _, t := range into {
		if t == nil {
			continue
		}
		ttl := remaining
		if p, ok := t.(interface{ Policy() Policy }); ok {
			if d := p.Policy().DefaultTTL; ttl <= 0 || d < ttl {
				ttl = d
			}
		}
		m.logFault(ctx, "promote", key, t.Set(ctx, key, value, ttl))
	}
}

func (m *Manager) tiers() []Tier {
	ts := []Tier{m.memory}
	if m.local != nil {
		ts = append(ts, m.local)
	}
	if m.remote != nil {
		ts = append(ts, m.remote)
	}
	return ts
}

func (m *Manager) logFault(ctx context.Context, op, key string, err error) {
	if err == nil {
		return
	}
	fields := []observe.Field{observe.F("op", op), observe.Err(err)}
	if key != "" {
		fields = append(fields, observe.F("key", key))
	}
	var te *TierError
	if errors.As(err, &te) {
		fields = append(fields, observe.F("tier", te.Tier))
	}
	m.logger.Warn(ctx, "cache tier fault", fields...)
}

func clampPriority(p Priority) Priority {
	switch {
	case p < PriorityNormal:
		return PriorityNormal
	case p > PriorityCritical:
		return PriorityCritical
	default:
		return p
	}
}

// nilIfTypedNil turns a nil *LocalTier or *RemoteTier stored in a Tier
// interface into a true nil.
func nilIfTypedNil(t Tier) Tier {
	switch v := t.(type) {
	case *LocalTier:
		if v == nil {
			return nil
		}
	case *RemoteTier:
		if v == nil {
			return nil
		}
	}
	return t
}

// cronLogger adapts observe.Logger to cron.Logger.
type cronLogger struct {
	l observe.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(context.Background(), "sweep: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(context.Background(), "sweep: "+msg, append(kvFields(keysAndValues), observe.Err(err))...)
}

func kvFields(kv []interface{}) []observe.Field {
	fields := make([]observe.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, observe.F(k, kv[i+1]))
	}
	return fields
}
