package cache

import "time"

// Default TTLs per tier.
const (
	DefaultMemoryTTL = 5 * time.Minute
	DefaultLocalTTL  = time.Hour
	DefaultRemoteTTL = 24 * time.Hour
)

// Policy decides the TTL a tier applies to a write.
type Policy struct {
	// DefaultTTL is used when a write specifies no TTL.
	DefaultTTL time.Duration

	// MaxTTL clamps requested TTLs. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := override
	if ttl <= 0 {
		ttl = p.DefaultTTL
	}
	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}
	return ttl
}

func (p Policy) withDefault(d time.Duration) Policy {
	if p.DefaultTTL <= 0 {
		p.DefaultTTL = d
	}
	return p
}
