// Package tracing provides OpenTelemetry helpers shared by all components.
package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the named component.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// RecordError records err on the span and marks the span status as error.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Attribute helpers for common span fields.

func AccountID(id string) attribute.KeyValue {
	return attribute.String("account_id", id)
}

func MailboxID(id string) attribute.KeyValue {
	return attribute.String("mailbox_id", id)
}

func MessageID(id string) attribute.KeyValue {
	return attribute.String("message_id", id)
}

func ThreadID(id string) attribute.KeyValue {
	return attribute.String("thread_id", id)
}

func BlobID(id string) attribute.KeyValue {
	return attribute.String("blob_id", id)
}

func LabelID(id string) attribute.KeyValue {
	return attribute.String("label_id", id)
}

func ContentType(ct string) attribute.KeyValue {
	return attribute.String("content_type", ct)
}

func Count(n int) attribute.KeyValue {
	return attribute.Int("count", n)
}
