package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache and fetch metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordLookup records a tier read as a hit or a miss.
	RecordLookup(ctx context.Context, tier string, hit bool)

	// RecordEviction records an entry evicted for capacity.
	RecordEviction(ctx context.Context, tier string)

	// RecordAttempt records one producer invocation.
	RecordAttempt(ctx context.Context, op Operation)

	// RecordExecution records a completed operation with duration and error status.
	RecordExecution(ctx context.Context, op Operation, duration time.Duration, err error)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	evictions    metric.Int64Counter
	attempts     metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the cache instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	lookups, err := meter.Int64Counter(
		"tiercache.get",
		metric.WithDescription("Tier lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter(
		"tiercache.evictions",
		metric.WithDescription("Entries evicted for capacity"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter(
		"tiercache.fetch.attempts",
		metric.WithDescription("Producer invocations, including retries"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"tiercache.fetch.errors",
		metric.WithDescription("Fetches that settled with an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"tiercache.fetch.duration_ms",
		metric.WithDescription("Fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		evictions:    evictions,
		attempts:     attempts,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordLookup(ctx context.Context, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("result", result),
	))
}

func (m *metricsImpl) RecordEviction(ctx context.Context, tier string) {
	m.evictions.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (m *metricsImpl) RecordAttempt(ctx context.Context, op Operation) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(op.attributes()...))
}

func (m *metricsImpl) RecordExecution(ctx context.Context, op Operation, duration time.Duration, err error) {
	opt := metric.WithAttributes(op.attributes()...)

	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return &noopMetrics{}
}

func (m *noopMetrics) RecordLookup(ctx context.Context, tier string, hit bool) {}
func (m *noopMetrics) RecordEviction(ctx context.Context, tier string)         {}
func (m *noopMetrics) RecordAttempt(ctx context.Context, op Operation)         {}
func (m *noopMetrics) RecordExecution(ctx context.Context, op Operation, duration time.Duration, err error) {
}
