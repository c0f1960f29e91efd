// Package resilience provides the failure-handling primitives used by the
// cache tiers and the fetch orchestrator.
//
// # Patterns
//
//   - Retry: re-runs a failed operation a bounded number of times with a
//     configurable backoff (constant, linear, exponential with jitter).
//     Timeouts are retried immediately since the timeout itself already
//     consumed the waiting period.
//
//   - Timeout: bounds a single attempt. The wait is abandoned when the
//     deadline passes; the underlying work is signalled via its context.
//
//   - Circuit Breaker: stops calling a backend that keeps failing so that
//     a dead dependency degrades to fast misses.
//
//   - Bulkhead: caps the number of concurrent upstream calls.
//
//   - Rate Limiter: a token bucket that paces calls to an upstream.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  4, // 3 retries
//	    InitialDelay: time.Second,
//	    Strategy:     resilience.BackoffConstant,
//	})
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    v, err := resilience.Within(ctx, 30*time.Second, load)
//	    if err != nil {
//	        return err
//	    }
//	    result = v
//	    return nil
//	})
//
//	var re *resilience.RetryError
//	if errors.As(err, &re) {
//	    log.Printf("gave up after %d attempts: %v", re.Attempts, re.Err)
//	}
package resilience
