package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hookpost/hookpost"

// Tracer provides OpenTelemetry tracing for delivery attempts.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new delivery tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartDeliverySpan starts a new span for a delivery attempt.
func (t *Tracer) StartDeliverySpan(ctx context.Context, deliveryID, eventID, endpointID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "hookpost.delivery",
		trace.WithAttributes(
			attribute.String("hookpost.delivery_id", deliveryID),
			attribute.String("hookpost.event_id", eventID),
			attribute.String("hookpost.endpoint_id", endpointID),
		),
	)
}

// EndDeliverySpan ends a delivery span with result attributes.
func (t *Tracer) EndDeliverySpan(span trace.Span, state string, statusCode, latencyMs int, errMsg string) {
	span.SetAttributes(
		attribute.String("hookpost.state", state),
		attribute.Int("http.status_code", statusCode),
		attribute.Int("hookpost.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("hookpost.error", errMsg))
	}
	span.End()
}
