package telemetry

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for completion latencies,
// ranging from 100ms to 60s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}

// SandboxBuckets covers sandbox executions up to the hard ceiling.
var SandboxBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10}

var (
	// HTTPRequestsTotal counts served HTTP requests by method, status class
	// and route pattern.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visualizer_http_requests_total",
			Help: "HTTP requests by method, status class and route",
		},
		[]string{"method", "status", "route"},
	)

	// HTTPRequestDuration records HTTP request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visualizer_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// RequestsTotal counts visualize requests by outcome kind.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visualizer_requests_total",
			Help: "Visualize requests by outcome",
		},
		[]string{"outcome"},
	)

	// CompletionAttemptsTotal counts individual upstream attempts.
	CompletionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visualizer_completion_attempts_total",
			Help: "Completion attempts by result",
		},
		[]string{"result"},
	)

	// CompletionLatency records per-attempt upstream latency in seconds.
	CompletionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visualizer_completion_latency_seconds",
			Help:    "Completion attempt latency",
			Buckets: LLMBuckets,
		},
	)

	// SandboxExecutionsTotal counts sandbox runs by language and outcome.
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visualizer_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"language", "outcome"},
	)

	// SandboxDuration records sandbox wall-clock time in seconds.
	SandboxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visualizer_sandbox_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: SandboxBuckets,
		},
		[]string{"language"},
	)

	// DataPointsReturned records the size of successful series.
	DataPointsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visualizer_data_points",
			Help:    "Data points per successful response",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RequestsTotal,
		CompletionAttemptsTotal,
		CompletionLatency,
		SandboxExecutionsTotal,
		SandboxDuration,
		DataPointsReturned,
	)
}
