package events

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Inject copies the trace context of ctx into env so consumers continue the trace.
func Inject(ctx context.Context, env *Envelope) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		env.Trace = carrier
	}
}

// Extract returns ctx with the producer's span, if env carries one, as remote parent.
func Extract(ctx context.Context, env Envelope) context.Context {
	if len(env.Trace) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Trace))
}

// StartPublish opens the producer span of one publish.
func (d *Dispatcher) StartPublish(ctx context.Context, topic string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "publish "+topic, attribute.String("messaging.destination", topic))
}
