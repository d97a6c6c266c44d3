package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/internal/config"
)

func TestPrometheusMetricsUseGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := config.Config{Observability: config.Observability{
		ServiceName:     "orderhub",
		EnableMetrics:   true,
		MetricsExporter: "prometheus",
		PrometheusPath:  "/metrics",
	}}

	mgr, err := newManager(context.Background(), cfg, zap.NewNop(), reg, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	assert.True(t, mgr.MetricsEnabled())
	assert.False(t, mgr.TracingEnabled())
	assert.Equal(t, prometheus.Registerer(reg), mgr.Registerer())

	counter, err := mgr.meterProvider.Meter("test").Int64Counter("orders.created")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes())

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders_created_total")
}

func TestUnknownExportersDisableSignals(t *testing.T) {
	cfg := config.Config{Observability: config.Observability{
		EnableTracing:   true,
		TraceExporter:   "zipkin",
		EnableMetrics:   true,
		MetricsExporter: "statsd",
	}}

	mgr, err := newManager(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry(), prometheus.NewRegistry())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.Registerer())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestSamplerBounds(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestShutdownWithoutProviders(t *testing.T) {
	mgr := &Manager{}
	mgr.Install()
	assert.NoError(t, mgr.Shutdown(context.Background()))
}
