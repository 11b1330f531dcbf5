package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tbuliHe/visualizer/internal/config"
)

// TestMetricsRegistered verifies that every collector is visible in the
// default registry once observed.
func TestMetricsRegistered(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "2xx", "/api/visualize").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/visualize").Observe(0.5)
	RequestsTotal.WithLabelValues("success").Inc()
	CompletionAttemptsTotal.WithLabelValues("success").Inc()
	CompletionLatency.Observe(0.2)
	SandboxExecutionsTotal.WithLabelValues("javascript", "success").Inc()
	SandboxDuration.WithLabelValues("javascript").Observe(0.01)
	DataPointsReturned.Observe(200)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	expected := map[string]bool{
		"visualizer_http_requests_total":           false,
		"visualizer_http_request_duration_seconds": false,
		"visualizer_requests_total":                false,
		"visualizer_completion_attempts_total":     false,
		"visualizer_completion_latency_seconds":    false,
		"visualizer_sandbox_executions_total":      false,
		"visualizer_sandbox_duration_seconds":      false,
		"visualizer_data_points":                   false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func TestRequestsTotalIncrements(t *testing.T) {
	before := counterValue(t, RequestsTotal, "execution_timeout")
	RequestsTotal.WithLabelValues("execution_timeout").Inc()
	after := counterValue(t, RequestsTotal, "execution_timeout")

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := vec.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}
