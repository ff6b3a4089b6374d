package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a recording tracer provider for the test and returns
// the recorder.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (string, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value.AsString(), true
		}
	}
	return "", false
}

func TestStartDBSpan_NamesAndAttributes(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"token list", "tokens", DBOperationQuery, "query tokens"},
		{"fog append", "fog_of_war", DBOperationExec, "exec fog_of_war"},
		{"chat insert", "chat_messages", DBOperationInsert, "insert chat_messages"},
		{"map update", "maps", DBOperationUpdate, "update maps"},
		{"token delete", "tokens", DBOperationDelete, "delete tokens"},
		{"no table", "", DBOperationQuery, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			_, endSpan := StartDBSpan(context.Background(), tt.table, tt.operation)
			endSpan(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("span name = %q, want %q", span.Name(), tt.wantName)
			}
			if got, _ := attrValue(span, "db.system"); got != "postgresql" {
				t.Errorf("db.system = %q, want postgresql", got)
			}
			if got, _ := attrValue(span, "db.operation"); got != string(tt.operation) {
				t.Errorf("db.operation = %q, want %q", got, tt.operation)
			}
			table, hasTable := attrValue(span, "db.sql.table")
			if tt.table == "" && hasTable {
				t.Error("db.sql.table set for table-less span")
			}
			if tt.table != "" && table != tt.table {
				t.Errorf("db.sql.table = %q, want %q", table, tt.table)
			}
		})
	}
}

func TestStartDBSpan_RecordsError(t *testing.T) {
	recorder := recordSpans(t)

	_, endSpan := StartDBSpan(context.Background(), "fog_of_war", DBOperationExec)
	endSpan(errors.New("connection refused"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Errorf("status code = %v, want Error", span.Status().Code)
	}
	if len(span.Events()) == 0 {
		t.Error("no events recorded, want error event")
	}
}

func TestStartSpan_Success(t *testing.T) {
	recorder := recordSpans(t)

	_, endSpan := StartSpan(context.Background(), "compute_token_vision")
	endSpan(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "compute_token_vision" {
		t.Errorf("span name = %q, want compute_token_vision", spans[0].Name())
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("status = Error for successful span")
	}
}

func TestStartSpan_Nesting(t *testing.T) {
	recorder := recordSpans(t)

	ctx, endOuter := StartSpan(context.Background(), "compute_token_vision")
	_, endInner := StartDBSpan(ctx, "tokens", DBOperationQuery)
	endInner(nil)
	endOuter(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	inner, outer := spans[0], spans[1]
	if inner.Parent().SpanID() != outer.SpanContext().SpanID() {
		t.Error("db span is not a child of the vision span")
	}
	if inner.SpanContext().TraceID() != outer.SpanContext().TraceID() {
		t.Error("spans do not share a trace")
	}
}

func TestAddEventAndSetAttributes(t *testing.T) {
	recorder := recordSpans(t)

	ctx, endSpan := StartSpan(context.Background(), "reveal_fog")
	SetAttributes(ctx, attribute.Int("areas.count", 3))
	AddEvent(ctx, "areas_merged", attribute.String("session.id", "sess-1"))
	endSpan(nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]

	found := false
	for _, attr := range span.Attributes() {
		if attr.Key == "areas.count" && attr.Value.AsInt64() == 3 {
			found = true
		}
	}
	if !found {
		t.Error("areas.count attribute missing")
	}

	if len(span.Events()) != 1 || span.Events()[0].Name != "areas_merged" {
		t.Errorf("events = %+v, want single areas_merged event", span.Events())
	}
}

func TestHelpers_NoopWithoutProvider(t *testing.T) {
	// With the default no-op provider installed, helpers must not panic.
	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.NeverSample()),
	))

	ctx, endSpan := StartSpan(context.Background(), "compute_token_vision")
	SetAttributes(ctx, attribute.Bool("sampled", false))
	AddEvent(ctx, "ignored")
	endSpan(errors.New("still must not panic"))
}
