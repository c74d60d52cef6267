package fastmail

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mailbridge/internal/jmap"
)

// setupTestTracer creates a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
	})
	return recorder
}

// findSpan finds a span by name in the recorded spans.
func findSpan(recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// hasAttribute checks if a span has an attribute with the given key and value.
func hasAttribute(span sdktrace.ReadOnlySpan, key, value string) bool {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key && attr.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestGetThreadsCreatesSpanWithAttributes(t *testing.T) {
	recorder := setupTestTracer(t)
	rpc := &fakeRPC{doFunc: respondInOrder(t, `{
		"methodResponses": [
			["Email/query", {"accountId": "acc1", "queryState": "q1", "canCalculateChanges": false, "position": 0, "ids": []}, "c0"],
			["Email/get", {"accountId": "acc1", "state": "s1", "list": []}, "c1"]
		],
		"sessionState": "s1"
	}`)}
	c := testClient(rpc)

	if _, err := c.GetThreads(context.Background(), "mb-inbox"); err != nil {
		t.Fatalf("GetThreads: %v", err)
	}

	span := findSpan(recorder, "fastmail.GetThreads")
	if span == nil {
		t.Fatal("no fastmail.GetThreads span recorded")
	}
	if !hasAttribute(span, "account_id", "acc1") {
		t.Error("span missing account_id attribute")
	}
	if !hasAttribute(span, "mailbox_id", "mb-inbox") {
		t.Error("span missing mailbox_id attribute")
	}
}

func TestGetThreadsRecordsErrorOnTransportFailure(t *testing.T) {
	recorder := setupTestTracer(t)
	transportErr := errors.New("connection refused")
	rpc := &fakeRPC{doFunc: func(*jmap.Request) (*jmap.Response, error) {
		return nil, transportErr
	}}
	c := testClient(rpc)

	if _, err := c.GetThreads(context.Background(), "mb-inbox"); !errors.Is(err, transportErr) {
		t.Fatalf("err = %v, want the transport error", err)
	}

	span := findSpan(recorder, "fastmail.GetThreads")
	if span == nil {
		t.Fatal("no fastmail.GetThreads span recorded")
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", span.Status().Code)
	}
}
