package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	tr, recorder := newRecordingTracer()
	metrics, reader := newTestMetrics(t)
	var logs bytes.Buffer
	mw := NewMiddleware(tr, metrics, NewLoggerWithWriter("debug", &logs))

	op := Operation{Component: "fetch", Name: "flight", Key: "pokemon:25"}
	result, err := mw.Wrap(func(ctx context.Context, op Operation) (any, error) {
		return "ok", nil
	})(context.Background(), op)

	if err != nil || result != "ok" {
		t.Fatalf("Wrap() = %v, %v", result, err)
	}
	if spans := recorder.Ended(); len(spans) != 1 || spans[0].Name() != "tiercache.fetch.flight" {
		t.Errorf("unexpected spans: %v", spans)
	}

	rm := collect(t, reader)
	if findMetric(rm, "tiercache.fetch.duration_ms") == nil {
		t.Error("duration not recorded")
	}
	if got := sumWhere(t, rm, "tiercache.fetch.errors"); got != 0 {
		t.Errorf("errors = %d, want 0", got)
	}

	entries := decodeLines(t, &logs)
	if len(entries) != 1 || entries[0]["level"] != "debug" || entries[0]["key"] != "pokemon:25" {
		t.Errorf("unexpected log: %v", entries)
	}
}

func TestMiddleware_ErrorPath(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	var logs bytes.Buffer
	mw := NewMiddleware(nil, metrics, NewLoggerWithWriter("info", &logs))

	wantErr := errors.New("upstream 503")
	_, err := mw.Wrap(func(ctx context.Context, op Operation) (any, error) {
		return nil, wantErr
	})(context.Background(), Operation{Name: "flight"})

	if !errors.Is(err, wantErr) {
		t.Fatalf("error should propagate unchanged, got %v", err)
	}
	if got := sumWhere(t, collect(t, reader), "tiercache.fetch.errors"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	entries := decodeLines(t, &logs)
	if len(entries) != 1 || entries[0]["level"] != "warn" || entries[0]["error"] != "upstream 503" {
		t.Errorf("unexpected log: %v", entries)
	}
}

func TestMiddleware_PropagatesSpanContext(t *testing.T) {
	tr, _ := newRecordingTracer()
	mw := NewMiddleware(tr, nil, nil)

	var inner trace.SpanContext
	_, _ = mw.Wrap(func(ctx context.Context, op Operation) (any, error) {
		inner = trace.SpanContextFromContext(ctx)
		return nil, nil
	})(context.Background(), Operation{Name: "flight"})

	if !inner.IsValid() {
		t.Error("wrapped function should see the operation span in its context")
	}
}

func TestMiddleware_NilComponents(t *testing.T) {
	mw := NewMiddleware(nil, nil, nil)
	if _, err := mw.Wrap(func(ctx context.Context, op Operation) (any, error) {
		return 1, nil
	})(context.Background(), Operation{Name: "noop"}); err != nil {
		t.Fatalf("Wrap() = %v", err)
	}
}
