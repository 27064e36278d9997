package workerpresentation

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/iclalusta/e-commerce-microservice/internal/domain/outbox"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
)

// EventFields are the dynamic log fields of one consumed event: event id
// (generated when the producer sent none), topic, partition key, consuming
// component and the active trace.
func EventFields(ctx context.Context, component, eventID string, evt domoutbox.Event) []observability.Field {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	fields := []observability.Field{
		observability.F("event_id", eventID),
		observability.F("event", evt.EventName()),
		observability.F("component", component),
	}
	if key := domoutbox.KeyOf(evt); key != "" {
		fields = append(fields, observability.F("key", key))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	return fields
}

// Handle adapts a typed consumer to a bus handler. Events of another type are
// acknowledged and counted as ignored; the handler runs with an event-scoped logger.
func Handle[E domoutbox.Event](
	tel observability.Observability,
	component string,
	eventID func(E) string,
	fn func(context.Context, E) error,
) domoutbox.Handler {
	tel = observability.Resolve(tel)
	deliveries := tel.Metrics().Counter(observability.MEventDeliveries)
	return func(ctx context.Context, e domoutbox.Event) error {
		evt, ok := e.(E)
		if !ok {
			deliveries.Add(1, observability.L("topic", e.EventName()), observability.L("outcome", "ignored"))
			logctx.FromOr(ctx, tel.Logger()).Warn("event_type_mismatch",
				observability.F("component", component),
				observability.F("event", e.EventName()),
			)
			return nil
		}

		id := eventID(evt)
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("messaging.destination", evt.EventName()),
			attribute.String("messaging.message_id", id),
			attribute.String("messaging.consumer", component),
		)
		ctx = logctx.Append(ctx, tel.Logger(), EventFields(ctx, component, id, evt)...)
		return fn(ctx, evt)
	}
}
