// Package tracing wraps OpenTelemetry for memory operations. Spans go to the
// global TracerProvider, which is a no-op until otelexport installs one.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nextlevelbuilder/memoria"

// Attribute keys shared by every memory span.
const (
	AttrProjectID   = attribute.Key("memoria.project_id")
	AttrCategory    = attribute.Key("memoria.category")
	AttrMemoryID    = attribute.Key("memoria.memory_id")
	AttrResultCount = attribute.Key("memoria.result_count")
	AttrLimit       = attribute.Key("memoria.limit")
	AttrThreshold   = attribute.Key("memoria.threshold")
)

// Tracer returns the package tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan opens an internal span named name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err (if any) and ends the span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
