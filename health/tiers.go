package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/tiercache/cache"
	"github.com/jonwraymond/tiercache/resilience"
)

// LocalProbe is the view of the client-durable tier the local checker needs.
// *cache.LocalTier satisfies it.
type LocalProbe interface {
	Pinger
	Usage(ctx context.Context) (used, quota int64, err error)
}

// LocalCheckerConfig configures quota thresholds for the local checker.
type LocalCheckerConfig struct {
	// WarningThreshold is the usage ratio (0.0-1.0) that degrades the check.
	// Default: 0.80
	WarningThreshold float64

	// CriticalThreshold is the usage ratio (0.0-1.0) that fails the check.
	// Default: 0.95
	CriticalThreshold float64
}

// LocalChecker reports reachability and quota pressure of the local store.
type LocalChecker struct {
	probe    LocalProbe
	warning  float64
	critical float64
}

// NewLocalChecker creates a local tier checker.
func NewLocalChecker(probe LocalProbe, cfg LocalCheckerConfig) *LocalChecker {
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold > 1 {
		cfg.WarningThreshold = 0.80
	}
	if cfg.CriticalThreshold <= 0 || cfg.CriticalThreshold > 1 {
		cfg.CriticalThreshold = 0.95
	}
	return &LocalChecker{probe: probe, warning: cfg.WarningThreshold, critical: cfg.CriticalThreshold}
}

func (c *LocalChecker) Name() string { return "local" }

func (c *LocalChecker) Check(ctx context.Context) Result {
	if err := c.probe.Ping(ctx); err != nil {
		return Unhealthy("local store unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	used, quota, err := c.probe.Usage(ctx)
	if err != nil {
		return Unhealthy("local usage unavailable", fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}

	var ratio float64
	if quota > 0 {
		ratio = float64(used) / float64(quota)
	}
	details := map[string]any{
		"used_bytes":  used,
		"quota_bytes": quota,
		"usage_ratio": ratio,
	}

	switch {
	case ratio >= c.critical:
		return Unhealthy(fmt.Sprintf("local quota critical: %.1f%% used", ratio*100), nil).WithDetails(details)
	case ratio >= c.warning:
		return Degraded(fmt.Sprintf("local quota high: %.1f%% used", ratio*100)).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("local quota %.1f%% used", ratio*100)).WithDetails(details)
	}
}

// RemoteProbe is the view of the remote tier the remote checker needs.
// *cache.RemoteTier satisfies it.
type RemoteProbe interface {
	Pinger
	Breaker() *resilience.CircuitBreaker
}

// RemoteChecker pings the shared backend and reports the circuit state.
type RemoteChecker struct {
	probe RemoteProbe
}

// NewRemoteChecker creates a remote tier checker.
func NewRemoteChecker(probe RemoteProbe) *RemoteChecker {
	return &RemoteChecker{probe: probe}
}

func (c *RemoteChecker) Name() string { return "remote" }

func (c *RemoteChecker) Check(ctx context.Context) Result {
	details := map[string]any{}
	state := resilience.StateClosed
	if b := c.probe.Breaker(); b != nil {
		m := b.Metrics()
		state = m.State
		details["circuit"] = m.State.String()
		details["failures"] = m.Failures
		details["rejected"] = m.Rejected
	}

	if err := c.probe.Ping(ctx); err != nil {
		return Unhealthy("remote backend unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err)).WithDetails(details)
	}
	if state != resilience.StateClosed {
		return Degraded("remote circuit " + state.String()).WithDetails(details)
	}
	return Healthy("remote backend reachable").WithDetails(details)
}

// ManagerProbe is the view of the cache manager the manager checker needs.
// *cache.Manager satisfies it.
type ManagerProbe interface {
	Stats() cache.ManagerStats
	Running() bool
}

// ManagerChecker reports cache counters. It degrades when the periodic
// sweep is not running.
type ManagerChecker struct {
	probe ManagerProbe
}

// NewManagerChecker creates a manager checker.
func NewManagerChecker(probe ManagerProbe) *ManagerChecker {
	return &ManagerChecker{probe: probe}
}

func (c *ManagerChecker) Name() string { return "cache" }

func (c *ManagerChecker) Check(ctx context.Context) Result {
	s := c.probe.Stats()
	details := map[string]any{
		"requests": s.Requests,
		"hits":     s.Hits,
		"misses":   s.Misses,
		"hit_rate": s.HitRate,
		"size":     s.Size,
		"capacity": s.Capacity,
		"sweeping": c.probe.Running(),
	}
	if !c.probe.Running() {
		return Degraded("expiry sweep not running").WithDetails(details)
	}
	return Healthy("cache serving").WithDetails(details)
}

var (
	_ LocalProbe   = (*cache.LocalTier)(nil)
	_ RemoteProbe  = (*cache.RemoteTier)(nil)
	_ ManagerProbe = (*cache.Manager)(nil)
)
