// Package oteltrace backs observability.Tracer with the global OpenTelemetry
// tracer provider. Spans are no-ops until a provider with an exporter is
// installed via otel.SetTracerProvider.
package oteltrace

import (
	"context"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iclalusta/e-commerce-microservice/internal/observability"
)

type tracer struct {
	t       trace.Tracer
	service attribute.KeyValue
}

// New returns a tracer named after service and installs the W3C trace-context
// and baggage propagators used by HTTP handlers, collaborator clients and the
// Kafka bus.
func New(service string) observability.Tracer {
	if service == "" {
		service = "checkout"
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &tracer{t: otel.Tracer(service), service: attribute.String("service.name", service)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name,
		trace.WithSpanKind(KindFor(name)),
		trace.WithAttributes(append(attrs, t.service)...),
	)
}

// KindFor derives the span kind from the span naming scheme: "GET /orders"
// style names are server spans, "event.<topic>" consumer spans, "publish <topic>"
// producer spans, and use case spans ("UC.<Name>") are internal.
func KindFor(name string) trace.SpanKind {
	method, _, _ := strings.Cut(name, " ")
	switch {
	case strings.HasPrefix(name, "UC."):
		return trace.SpanKindInternal
	case strings.HasPrefix(name, "event."):
		return trace.SpanKindConsumer
	case strings.HasPrefix(name, "publish "):
		return trace.SpanKindProducer
	case isHTTPMethod(method):
		return trace.SpanKindServer
	default:
		return trace.SpanKindInternal
	}
}

func isHTTPMethod(s string) bool {
	switch s {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
