package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"resumereview/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectNames(t *testing.T, reader *sdkmetric.ManualReader) map[string]bool {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	return names
}

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequest(ctx, "analyze", 150*time.Millisecond, nil)
	m.RecordRequest(ctx, "report", time.Second, errors.New("boom"))
	m.RecordAnalysis(ctx, "displayed", 88, 75)
	m.RecordExport(ctx, "local", 2048, nil)
	m.RecordBreakerTransition(ctx, "analysis-service", "closed", "open")

	names := collectNames(t, reader)
	for _, want := range []string{
		"resumereview_service_request_duration_seconds",
		"resumereview_service_requests_total",
		"resumereview_service_errors_total",
		"resumereview_analyses_total",
		"resumereview_analysis_score",
		"resumereview_reports_exported_total",
		"resumereview_report_size_bytes",
		"resumereview_circuit_breaker_transitions_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordRequest(ctx, "analyze", time.Second, nil)
		m.RecordAnalysis(ctx, "failed", 0, 0)
		m.RecordExport(ctx, "s3", 0, errors.New("boom"))
		m.RecordBreakerTransition(ctx, "x", "closed", "open")
	})
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{Enabled: false}, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, om.GetMetrics())
	assert.NotNil(t, om.Tracer("resumereview.test"))
	assert.NotNil(t, om.TracerProvider())
	assert.NoError(t, om.Shutdown(context.Background()))
}

func TestGetObservabilityConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Observability.Enabled = true

	obs := GetObservabilityConfig(cfg, "1.2.3")
	assert.Equal(t, "resumereview", obs.ServiceName)
	assert.Equal(t, "1.2.3", obs.ServiceVersion, "app version fills an empty service version")
	assert.True(t, obs.Enabled)
	assert.Equal(t, 15*time.Second, obs.CollectionInterval)

	fallback := GetObservabilityConfig(nil, "dev")
	assert.False(t, fallback.Enabled)
	assert.Equal(t, "dev", fallback.ServiceVersion)
}
