package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/tiercache/observe"
)

// DefaultMemoryCapacity is the default number of entries the memory tier holds.
const DefaultMemoryCapacity = 100

// MemoryConfig configures a MemoryTier.
type MemoryConfig struct {
	// Capacity is the maximum number of entries. Default: 100
	Capacity int

	// Policy supplies the TTL. Default TTL: 5 minutes
	Policy Policy

	// Name overrides the tier name. Default: "memory"
	Name string

	// Metrics receives eviction counts. Optional.
	Metrics observe.Metrics

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// MemoryTier is a fixed-capacity LRU held in process memory.
//
// Every operation completes synchronously under a mutex and never errors.
type MemoryTier struct {
	name     string
	capacity int
	policy   Policy
	metrics  observe.Metrics
	now      func() time.Time

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently used

	stats counters
}

// NewMemoryTier creates an empty memory tier.
func NewMemoryTier(cfg MemoryConfig) *MemoryTier {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultMemoryCapacity
	}
	if cfg.Name == "" {
		cfg.Name = "memory"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &MemoryTier{
		name:     cfg.Name,
		capacity: cfg.Capacity,
		policy:   cfg.Policy.withDefault(DefaultMemoryTTL),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *MemoryTier) Name() string { return m.name }

// Get returns an unexpired value and marks it most recently used.
func (m *MemoryTier) Get(ctx context.Context, key string) (any, bool) {
	v, _, ok := m.GetEntry(ctx, key)
	return v, ok
}

// GetEntry is Get plus the entry's expiry.
func (m *MemoryTier) GetEntry(_ context.Context, key string) (any, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.stats.miss()
		return nil, time.Time{}, false
	}

	entry := el.Value.(*Entry)
	if entry.Expired(m.now()) {
		m.removeLocked(el)
		m.stats.miss()
		return nil, time.Time{}, false
	}

	m.order.MoveToFront(el)
	m.stats.hit()
	return entry.Value, entry.ExpiresAt, true
}

// Peek returns an unexpired value without touching recency or stats.
func (m *MemoryTier) Peek(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.Expired(m.now()) {
		return nil, false
	}
	return entry.Value, true
}

// Set stores value. Inserting a new key into a full tier first evicts the
// least recently used entry; overwriting an existing key never evicts.
func (m *MemoryTier) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	now := m.now()
	expiresAt := now.Add(m.policy.EffectiveTTL(ttl))

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*Entry)
		entry.Value = value
		entry.CreatedAt = now
		entry.ExpiresAt = expiresAt
		m.order.MoveToFront(el)
		return nil
	}

	if len(m.items) >= m.capacity {
		if oldest := m.order.Back(); oldest != nil {
			m.removeLocked(oldest)
			m.stats.evict()
			m.metrics.RecordEviction(ctx, m.name)
		}
	}

	m.items[key] = m.order.PushFront(&Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	return nil
}

func (m *MemoryTier) Delete(ctx context.Context, key string) error {
	_, err := m.Remove(ctx, key)
	return err
}

// Remove deletes key and reports whether it was stored, expired or not.
func (m *MemoryTier) Remove(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if ok {
		m.removeLocked(el)
	}
	return ok, nil
}

// Clear removes every entry and resets the counters.
func (m *MemoryTier) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.stats.reset()
	return nil
}

// Cleanup removes every expired entry.
func (m *MemoryTier) Cleanup(_ context.Context) (int, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*Entry).Expired(now) {
			m.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed, nil
}

// Len returns the number of entries held, including expired ones not yet reclaimed.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Keys returns the held keys from most to least recently used.
func (m *MemoryTier) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.items))
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*Entry).Key)
	}
	return keys
}

func (m *MemoryTier) Stats() Stats {
	s := m.stats.snapshot()
	s.Size = m.Len()
	s.Capacity = m.capacity
	return s
}

// Policy returns the tier's TTL policy.
func (m *MemoryTier) Policy() Policy { return m.policy }

func (m *MemoryTier) removeLocked(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*Entry).Key)
}

var (
	_ Tier        = (*MemoryTier)(nil)
	_ EntryReader = (*MemoryTier)(nil)
	_ Remover     = (*MemoryTier)(nil)
)
