package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCheckTimeout bounds one CheckAll run.
const DefaultCheckTimeout = 10 * time.Second

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout is the maximum time to wait for all checks.
	// Default: 10 seconds
	Timeout time.Duration
}

type registration struct {
	checker  Checker
	optional bool
}

// Aggregator runs a set of named checkers and folds their results into
// one status.
type Aggregator struct {
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]registration
	order  []string
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	timeout := DefaultCheckTimeout
	if len(config) > 0 && config[0].Timeout > 0 {
		timeout = config[0].Timeout
	}
	return &Aggregator{
		timeout: timeout,
		checks:  make(map[string]registration),
	}
}

// Register adds a checker whose failure makes the process unready.
func (a *Aggregator) Register(name string, checker Checker) {
	a.register(name, registration{checker: checker})
}

// RegisterOptional adds a checker whose failure only degrades the overall
// status.
func (a *Aggregator) RegisterOptional(name string, checker Checker) {
	a.register(name, registration{checker: checker, optional: true})
}

func (a *Aggregator) register(name string, reg registration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.checks[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checks[name] = reg
}

// Unregister removes a checker.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.checks, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs a single named health check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	reg, ok := a.checks[name]
	a.mu.RUnlock()
	if !ok {
		return Result{}, ErrCheckerNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return runCheck(ctx, reg.checker), nil
}

// CheckAll runs every registered check in parallel.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checks := make(map[string]Checker, len(a.checks))
	for name, reg := range a.checks {
		checks[name] = reg.checker
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	if len(checks) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, checker := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := runCheck(ctx, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// OverallStatus folds results into one status. An Unhealthy result from an
// optional checker counts as Degraded.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	overall := StatusHealthy
	for name, result := range results {
		status := result.Status
		if status == StatusUnhealthy && a.checks[name].optional {
			status = StatusDegraded
		}
		if status > overall {
			overall = status
		}
	}
	return overall
}

// Report is the outcome of one CheckAll run.
type Report struct {
	Status    Status
	Checks    map[string]Result
	Timestamp time.Time
}

// Report runs every check and computes the overall status.
func (a *Aggregator) Report(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	return Report{
		Status:    a.OverallStatus(results),
		Checks:    results,
		Timestamp: time.Now(),
	}
}

func runCheck(ctx context.Context, checker Checker) Result {
	start := time.Now()
	resultCh := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
