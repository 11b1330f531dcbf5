package telemetry

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSampler(t *testing.T) {
	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sampledParent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))

	tests := []struct {
		name   string
		ratio  float64
		parent context.Context
		want   sdktrace.SamplingDecision
	}{
		{"full ratio keeps roots", 1, context.Background(), sdktrace.RecordAndSample},
		{"zero ratio drops roots", 0, context.Background(), sdktrace.Drop},
		{"zero ratio follows sampled parent", 0, sampledParent, sdktrace.RecordAndSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sampler(tt.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       traceID,
				Name:          "POST /api/visualize",
			})
			if got.Decision != tt.want {
				t.Errorf("Sampler(%v) decision = %v, want %v", tt.ratio, got.Decision, tt.want)
			}
		})
	}
}
