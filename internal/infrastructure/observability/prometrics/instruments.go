package prometrics

import (
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Instruments registers every metric the services emit and returns them keyed for observability.New.
func Instruments(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
			"Use case executions by outcome.", "use_case", "outcome"),
		observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
			"HTTP requests served.", "method", "route", "status"),
		observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
			"Calls to collaborators and the event bus.", "peer", "endpoint", "outcome"),
		observability.MEventDeliveries: r.Counter(string(observability.MEventDeliveries),
			"Event handler deliveries by outcome.", "topic", "outcome"),
		observability.MEventDeadLetters: r.Counter(string(observability.MEventDeadLetters),
			"Events moved to the dead-letter path.", "topic"),
		observability.MStockOversold: r.Counter(string(observability.MStockOversold),
			"Stock decrements that exceeded available stock."),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
			"Use case latency.", prometheus.DefBuckets, "use_case"),
		observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
			"HTTP request latency.", prometheus.DefBuckets, "method", "route", "status"),
		observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
			"Collaborator call latency.", prometheus.DefBuckets, "peer", "endpoint"),
	}
	return counters, histograms
}
