package cache

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Priority selects how many tiers a write reaches.
type Priority int

const (
	// PriorityNormal writes to memory only.
	PriorityNormal Priority = iota + 1
	// PriorityHigh writes to memory and the local durable tier.
	PriorityHigh
	// PriorityCritical writes to every tier.
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityNormal && p <= PriorityCritical
}

// ParsePriority parses normal, high or critical (case-insensitive).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("cache: unknown priority %q", s)
	}
}

// Stats is a snapshot of tier or manager counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`

	// Size is the number of entries held. Durable tiers report 0.
	Size int `json:"size"`
	// Capacity is the maximum number of entries, 0 if unbounded.
	Capacity int `json:"capacity"`
}

// Requests is hits plus misses.
func (s Stats) Requests() int64 {
	return s.Hits + s.Misses
}

// HitRate is hits/(hits+misses), or 0 before the first request.
func (s Stats) HitRate() float64 {
	total := s.Requests()
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters holds the monotonic hit/miss/eviction counts of a tier.
type counters struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func (c *counters) hit()   { c.hits.Add(1) }
func (c *counters) miss()  { c.misses.Add(1) }
func (c *counters) evict() { c.evictions.Add(1) }

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
