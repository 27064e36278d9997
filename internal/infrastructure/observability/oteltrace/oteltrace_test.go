package oteltrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestKindFor(t *testing.T) {
	cases := map[string]trace.SpanKind{
		"UC.CreateOrder":        trace.SpanKindInternal,
		"event.order.created":   trace.SpanKindConsumer,
		"publish order.created": trace.SpanKindProducer,
		"GET /orders/{id}":      trace.SpanKindServer,
		"POST /orders":          trace.SpanKindServer,
		"reconcile":             trace.SpanKindInternal,
	}
	for name, want := range cases {
		assert.Equal(t, want, KindFor(name), name)
	}
}

func TestNewInstallsTraceContextPropagator(t *testing.T) {
	tr := New("")
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")

	ctx, span := tr.Start(context.Background(), "UC.Test")
	defer span.End()
	assert.NotNil(t, ctx)
}
