package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracer(tp.Tracer("test")), recorder
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]attribute.Value {
	m := make(map[string]attribute.Value)
	for _, a := range s.Attributes() {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestOperation_SpanName(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{Operation{Component: "fetch", Name: "flight"}, "tiercache.fetch.flight"},
		{Operation{Name: "cleanup"}, "tiercache.cleanup"},
		{Operation{Component: "cache", Name: "get", Key: "ignored"}, "tiercache.cache.get"},
	}
	for _, tt := range tests {
		if got := tt.op.SpanName(); got != tt.want {
			t.Errorf("SpanName() = %q, want %q", got, tt.want)
		}
	}
}

func TestOperation_Validate(t *testing.T) {
	if err := (Operation{}).Validate(); !errors.Is(err, ErrMissingOperationName) {
		t.Errorf("Validate() = %v, want ErrMissingOperationName", err)
	}
	if err := (Operation{Name: "flight"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tr, recorder := newRecordingTracer()
	op := Operation{Component: "cache", Name: "get", Key: "pokemon:25", Tier: "remote"}

	_, span := tr.StartSpan(context.Background(), op)
	tr.EndSpan(span, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "tiercache.cache.get" {
		t.Errorf("span name = %q", s.Name())
	}

	attrs := spanAttrs(s)
	if v := attrs["tiercache.key"]; v.AsString() != "pokemon:25" {
		t.Errorf("tiercache.key = %v", v)
	}
	if v := attrs["tiercache.tier"]; v.AsString() != "remote" {
		t.Errorf("tiercache.tier = %v", v)
	}
	if v, ok := attrs["tiercache.error"]; !ok || v.AsBool() {
		t.Errorf("tiercache.error = %v, want false", v)
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_OptionalAttributesOmitted(t *testing.T) {
	tr, recorder := newRecordingTracer()
	_, span := tr.StartSpan(context.Background(), Operation{Name: "cleanup"})
	tr.EndSpan(span, nil)

	attrs := spanAttrs(recorder.Ended()[0])
	for _, k := range []string{"tiercache.key", "tiercache.tier", "tiercache.component"} {
		if _, ok := attrs[k]; ok {
			t.Errorf("unexpected attribute %s", k)
		}
	}
}

func TestTracer_ErrorStatus(t *testing.T) {
	tr, recorder := newRecordingTracer()
	_, span := tr.StartSpan(context.Background(), Operation{Component: "fetch", Name: "flight"})
	tr.EndSpan(span, errors.New("upstream 503"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "upstream 503" {
		t.Errorf("status = %+v", s.Status())
	}
	if !spanAttrs(s)["tiercache.error"].AsBool() {
		t.Error("tiercache.error should be true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestTracer_ContextPropagation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otelTracer := tp.Tracer("test")
	tr := NewTracer(otelTracer)

	parentCtx, parent := otelTracer.Start(context.Background(), "parent")
	_, child := tr.StartSpan(parentCtx, Operation{Name: "child"})
	tr.EndSpan(child, nil)
	parent.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("child span should have parent as its parent")
	}
}
