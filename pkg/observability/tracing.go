// Package observability provides tracing for shopsync
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// Tracer returns the global tracer, falling back to the otel default.
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("shopsync")
	}
	return tracer
}

// Span wraps a trace span with shopsync attribute helpers.
type Span struct {
	span trace.Span
}

// StartStreamSpan starts the span covering one stream sync.
func StartStreamSpan(ctx context.Context, stream, mode string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, "stream.sync",
		trace.WithAttributes(
			attribute.String("stream.name", stream),
			attribute.String("stream.mode", mode),
		),
	)
	return ctx, &Span{span: span}
}

// StartBulkJobSpan starts the span covering one bulk operation, from submit
// to the end of result parsing.
func StartBulkJobSpan(ctx context.Context, stream, windowStart, windowEnd string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, "bulk.job",
		trace.WithAttributes(
			attribute.String("stream.name", stream),
			attribute.String("bulk.window_start", windowStart),
			attribute.String("bulk.window_end", windowEnd),
		),
	)
	return ctx, &Span{span: span}
}

// SetInt records a numeric attribute
func (s *Span) SetInt(key string, v int64) {
	s.span.SetAttributes(attribute.Int64(key, v))
}

// SetString records a string attribute
func (s *Span) SetString(key, v string) {
	s.span.SetAttributes(attribute.String(key, v))
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End sets the span status from err and ends it.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
