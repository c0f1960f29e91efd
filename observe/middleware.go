package observe

import (
	"context"
	"time"
)

// ExecuteFunc is the signature of an instrumented operation.
type ExecuteFunc func(ctx context.Context, op Operation) (any, error)

// Middleware wraps operations with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  OrNop(logger),
	}
}

// Metrics returns the metrics recorder the middleware reports to.
func (m *Middleware) Metrics() Metrics {
	return m.metrics
}

// Wrap wraps fn with a span, duration and error metrics, and a debug or
// warn log line.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, op Operation) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, op)
		start := time.Now()

		result, err := fn(ctx, op)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, op, duration, err)

		fields := []Field{
			{Key: "op", Value: op.SpanName()},
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
		}
		if op.Key != "" {
			fields = append(fields, Field{Key: "key", Value: op.Key})
		}

		if err != nil {
			fields = append(fields, Err(err))
			m.logger.Warn(ctx, "operation failed", fields...)
		} else {
			m.logger.Debug(ctx, "operation completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
