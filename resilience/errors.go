package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded is matched by a RetryError whose attempts ran out.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrRateLimited is returned when no token is available in time.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")
)

// RetryError is the terminal error of a Retry.
//
// Err is the cause of the last failed attempt. Exhausted reports whether the
// retry gave up because every attempt was spent (as opposed to hitting a
// non-retryable error).
type RetryError struct {
	Attempts  int
	Err       error
	Exhausted bool
}

func (e *RetryError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("resilience: gave up after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("resilience: failed on attempt %d: %v", e.Attempts, e.Err)
}

// Unwrap exposes both the last cause and, when exhausted, ErrMaxRetriesExceeded.
func (e *RetryError) Unwrap() []error {
	if e.Exhausted {
		return []error{ErrMaxRetriesExceeded, e.Err}
	}
	return []error{e.Err}
}

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
