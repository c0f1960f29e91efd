package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/tiercache/resilience"
)

func ExampleNewRetry() {
	r := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("upstream unavailable")
	})

	var rerr *resilience.RetryError
	if errors.As(err, &rerr) {
		fmt.Println("attempts:", rerr.Attempts)
		fmt.Println("exhausted:", errors.Is(err, resilience.ErrMaxRetriesExceeded))
	}
	// Output:
	// attempts: 3
	// exhausted: true
}

func ExampleWithin() {
	_, err := resilience.Within(context.Background(), 10*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	fmt.Println(resilience.IsTimeout(err))
	// Output:
	// true
}

func ExampleCircuitBreaker_State() {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Minute,
	})

	fmt.Println("initial:", cb.State())
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return errors.New("service unavailable")
		})
	}
	fmt.Println("after failures:", cb.State())
	// Output:
	// initial: closed
	// after failures: open
}
