package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Operation describes a cache or fetch operation for telemetry purposes.
type Operation struct {
	Component string // "cache" or "fetch"
	Name      string // operation name (required), e.g. "flight", "cleanup"
	Key       string // cache key, if any
	Tier      string // tier name, if the operation targets one tier
}

// SpanName returns the deterministic span name for this operation.
// Format: tiercache.<component>.<name> or tiercache.<name>
func (o Operation) SpanName() string {
	if o.Component != "" {
		return "tiercache." + o.Component + "." + o.Name
	}
	return "tiercache." + o.Name
}

// Validate reports whether the operation can be recorded.
func (o Operation) Validate() error {
	if o.Name == "" {
		return ErrMissingOperationName
	}
	return nil
}

func (o Operation) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("tiercache.op", o.Name),
	}
	if o.Component != "" {
		attrs = append(attrs, attribute.String("tiercache.component", o.Component))
	}
	if o.Tier != "" {
		attrs = append(attrs, attribute.String("tiercache.tier", o.Tier))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation-specific spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for the operation.
	StartSpan(ctx context.Context, op Operation) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a span carrying the operation attributes. The cache key
// is recorded as an attribute; it is not part of the span name so that span
// names stay low-cardinality.
func (t *tracerImpl) StartSpan(ctx context.Context, op Operation) (context.Context, trace.Span) {
	attrs := op.attributes()
	if op.Key != "" {
		attrs = append(attrs, attribute.String("tiercache.key", op.Key))
	}
	attrs = append(attrs, attribute.Bool("tiercache.error", false))

	return t.tracer.Start(ctx, op.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("tiercache.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, op Operation) (context.Context, trace.Span) {
	return t.noop.Start(ctx, op.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
