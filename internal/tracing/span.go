package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartEventSpan starts a consumer span for processing one event.
func StartEventSpan(ctx context.Context, tracer trace.Tracer, topic, eventID string, eventTime time.Time) (context.Context, trace.Span) {
	spanName := "process"
	if topic != "" {
		spanName = topic + " process"
	}
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String("messaging.operation", "process"),
		attribute.String("messaging.message.id", eventID),
	)
	if topic != "" {
		span.SetAttributes(attribute.String("messaging.destination.name", topic))
	}
	if !eventTime.IsZero() {
		span.SetAttributes(attribute.Int64("lagmeter.event_time_ms", eventTime.UnixMilli()))
	}
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ExtractHeaders returns ctx carrying any trace context found in headers.
// The global propagator is a no-op unless Init enabled propagation.
func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// InjectHeaders writes the trace context of ctx into headers and returns them.
// A nil map is allocated only when there is context to carry.
func InjectHeaders(ctx context.Context, headers map[string]string) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return headers
	}
	if headers == nil {
		headers = make(map[string]string, len(carrier))
	}
	for k, v := range carrier {
		headers[k] = v
	}
	return headers
}
