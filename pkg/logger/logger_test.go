package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func setupTracer(t *testing.T) {
	t.Helper()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("failed to parse log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestContextHandler_AddsTraceIDs(t *testing.T) {
	setupTracer(t)
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug")

	ctx, span := otel.Tracer("test").Start(context.Background(), "open-reservation")
	defer span.End()
	log.ErrorContext(ctx, "ledger unavailable", "error", errors.New("boom"), "item_id", "123")

	entry := lastEntry(t, &buf)
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v, want %s", entry["trace_id"], span.SpanContext().TraceID())
	}
	if entry["span_id"] != span.SpanContext().SpanID().String() {
		t.Errorf("span_id = %v, want %s", entry["span_id"], span.SpanContext().SpanID())
	}
	if entry["item_id"] != "123" || entry["error"] != "boom" {
		t.Errorf("unexpected attributes: %v", entry)
	}
}

func TestContextHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "info").InfoContext(context.Background(), "no span")

	entry := lastEntry(t, &buf)
	if _, ok := entry["trace_id"]; ok {
		t.Error("trace_id should not be present without an active span")
	}
}

func TestContextHandler_NestedSpansShareTrace(t *testing.T) {
	setupTracer(t)
	var buf bytes.Buffer
	log := NewWriter(&buf, "info")
	tracer := otel.Tracer("test")

	ctx, parent := tracer.Start(context.Background(), "close")
	log.InfoContext(ctx, "parent")
	parentEntry := lastEntry(t, &buf)

	ctx, child := tracer.Start(ctx, "release")
	log.InfoContext(ctx, "child")
	childEntry := lastEntry(t, &buf)
	child.End()
	parent.End()

	if parentEntry["trace_id"] != childEntry["trace_id"] {
		t.Errorf("expected same trace_id: %v vs %v", parentEntry["trace_id"], childEntry["trace_id"])
	}
	if parentEntry["span_id"] == childEntry["span_id"] {
		t.Error("expected different span_ids for parent and child")
	}
}

func TestWith_KeepsContextHandler(t *testing.T) {
	setupTracer(t)
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With("component", "ledger")

	ctx, span := otel.Tracer("test").Start(context.Background(), "span")
	defer span.End()
	log.InfoContext(ctx, "bound")

	entry := lastEntry(t, &buf)
	if entry["component"] != "ledger" {
		t.Errorf("component = %v", entry["component"])
	}
	if _, ok := entry["trace_id"]; !ok {
		t.Error("With must keep trace injection")
	}
}

func TestCritical_TagsSeverity(t *testing.T) {
	var buf bytes.Buffer
	Critical(context.Background(), NewWriter(&buf, "info"), "capacity overflow on release", "item_id", "abc")

	entry := lastEntry(t, &buf)
	if entry["level"] != "ERROR" {
		t.Errorf("expected ERROR level, got %v", entry["level"])
	}
	if entry["severity"] != "critical" {
		t.Errorf("expected severity=critical, got %v", entry["severity"])
	}
	if entry["item_id"] != "abc" {
		t.Errorf("expected item_id=abc, got %v", entry["item_id"])
	}
}

func TestNewWriter_Levels(t *testing.T) {
	tests := []struct {
		level     string
		infoShown bool
	}{
		{"debug", true},
		{"info", true},
		{"WARN", false},
		{"error", false},
		{"nonsense", true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			NewWriter(&buf, tt.level).Info("reservation opened")
			if got := buf.Len() > 0; got != tt.infoShown {
				t.Errorf("info shown = %v, want %v", got, tt.infoShown)
			}
		})
	}
}
