package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 10
	Rate float64

	// Burst is the number of operations allowed back to back.
	// Default: 1
	Burst int

	// MaxWait bounds how long Wait blocks for a token. Zero fails at once
	// when no token is left; a negative value waits until the context is
	// done.
	MaxWait time.Duration

	// Now returns the current time. Default: time.Now
	Now func() time.Time
}

// RateLimiterMetrics is a snapshot of a RateLimiter.
type RateLimiterMetrics struct {
	Rate     float64 `json:"rate"`
	Burst    int     `json:"burst"`
	Tokens   float64 `json:"tokens"`
	Rejected int64   `json:"rejected"`
}

// RateLimiter paces operations against an upstream with a token bucket.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time

	rejected atomic.Int64
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config: config,
		tokens: float64(config.Burst),
		last:   config.Now(),
	}
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	if _, ok := rl.reserve(); ok {
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Wait blocks until a token is taken, MaxWait passes or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var expired <-chan time.Time
	if rl.config.MaxWait > 0 {
		timer := time.NewTimer(rl.config.MaxWait)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		delay, ok := rl.reserve()
		if ok {
			return nil
		}
		if rl.config.MaxWait == 0 {
			rl.rejected.Add(1)
			return ErrRateLimited
		}

		next := time.NewTimer(delay)
		select {
		case <-next.C:
		case <-expired:
			next.Stop()
			rl.rejected.Add(1)
			return ErrRateLimited
		case <-ctx.Done():
			next.Stop()
			return ctx.Err()
		}
	}
}

// Metrics returns a snapshot of the limiter.
func (rl *RateLimiter) Metrics() RateLimiterMetrics {
	rl.mu.Lock()
	rl.refillLocked()
	tokens := rl.tokens
	rl.mu.Unlock()

	return RateLimiterMetrics{
		Rate:     rl.config.Rate,
		Burst:    rl.config.Burst,
		Tokens:   tokens,
		Rejected: rl.rejected.Load(),
	}
}

// reserve takes a token, or reports how long until the next one.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	missing := 1 - rl.tokens
	return time.Duration(missing / rl.config.Rate * float64(time.Second)), false
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Now()
	elapsed := now.Sub(rl.last)
	if elapsed <= 0 {
		return
	}
	rl.last = now

	rl.tokens += elapsed.Seconds() * rl.config.Rate
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}
