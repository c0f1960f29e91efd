package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy defines how delays grow between retries.
type BackoffStrategy int

const (
	// BackoffConstant waits InitialDelay before every retry.
	BackoffConstant BackoffStrategy = iota
	// BackoffLinear waits InitialDelay * attempt.
	BackoffLinear
	// BackoffExponential waits InitialDelay * Multiplier^(attempt-1).
	BackoffExponential
)

// String returns the configuration name of the strategy.
func (s BackoffStrategy) String() string {
	switch s {
	case BackoffConstant:
		return "constant"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseBackoff maps a configuration name to a strategy.
// Unknown names yield BackoffConstant.
func ParseBackoff(s string) BackoffStrategy {
	switch s {
	case "linear":
		return BackoffLinear
	case "exponential":
		return BackoffExponential
	default:
		return BackoffConstant
	}
}

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 4 (one call plus three retries)
	MaxAttempts int

	// InitialDelay is the base delay between attempts. A negative value
	// retries without waiting.
	// Default: 1s
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is used by BackoffExponential.
	// Default: 2.0
	Multiplier float64

	// Strategy is the backoff strategy.
	// Default: BackoffConstant
	Strategy BackoffStrategy

	// Jitter adds up to 25% random delay.
	Jitter bool

	// RetryIf reports whether err may be retried.
	// Default: every error except context cancellation.
	RetryIf func(err error) bool

	// OnRetry is called before each retry, with the delay about to be waited.
	// The delay is zero when the previous attempt timed out.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs failing operations with backoff.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	switch {
	case config.InitialDelay == 0:
		config.InitialDelay = time.Second
	case config.InitialDelay < 0:
		// Negative disables waiting between attempts.
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = defaultRetryIf
	}

	return &Retry{config: config}
}

func defaultRetryIf(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Execute runs op until it succeeds, hits a non-retryable error, or runs out
// of attempts. Any failure is returned as a *RetryError. Cancellation of ctx
// while waiting between attempts returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return &RetryError{Attempts: attempt, Err: err}
		}
		if attempt >= r.config.MaxAttempts {
			break
		}

		// A timed-out attempt already spent its wait.
		var delay time.Duration
		if !IsTimeout(err) {
			delay = r.Delay(attempt)
		}

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if delay <= 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return &RetryError{Attempts: r.config.MaxAttempts, Err: lastErr, Exhausted: true}
}

// Delay returns the wait that follows the given failed attempt (1-based).
func (r *Retry) Delay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.Strategy {
	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(attempt)
	case BackoffExponential:
		multiplier := math.Pow(r.config.Multiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.InitialDelay) * multiplier)
	default:
		delay = r.config.InitialDelay
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}

	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}
