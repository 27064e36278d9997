package prometrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "checkout", "")

	c1 := r.Counter("orders_total", "orders", "outcome")
	c2 := r.Counter("orders_total", "orders", "outcome")

	c1.Add(1, observability.L("outcome", "success"))
	c2.Bind(observability.L("outcome", "success")).Add(2)

	cv := c1.(*counter).v
	assert.Equal(t, 3.0, testutil.ToFloat64(cv.WithLabelValues("success")))
}

func TestInstrumentsCoverEveryKey(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters, histograms := Instruments(NewWithRegisterer(reg, "checkout", ""))

	for _, k := range []observability.MetricKey{
		observability.MUsecaseRequests, observability.MHTTPRequests, observability.MExternalRequests,
		observability.MEventDeliveries, observability.MEventDeadLetters, observability.MStockOversold,
	} {
		require.Contains(t, counters, k)
	}
	for _, k := range []observability.MetricKey{
		observability.MUsecaseDuration, observability.MHTTPRequestDuration, observability.MExternalRequestDuration,
	} {
		require.Contains(t, histograms, k)
	}

	histograms[observability.MUsecaseDuration].Observe(0.2, observability.L("use_case", "CreateOrder"))
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMissingAndUnknownLabelsDoNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "", "")
	h := r.Histogram("latency_seconds", "latency", prometheus.DefBuckets, "method", "route", "status")

	assert.NotPanics(t, func() {
		h.Observe(0.1, observability.L("method", "GET"), observability.L("route", "/orders"), observability.L("extra", "x"))
	})
	count, err := testutil.GatherAndCount(reg, "latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	labels := map[string]string{}
	for _, lp := range families[0].GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, map[string]string{"method": "GET", "route": "/orders", "status": missingLabel}, labels)
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg, "", "")
	r.Counter("stock_oversold_total", "oversold").Add(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stock_oversold_total 1")
}
