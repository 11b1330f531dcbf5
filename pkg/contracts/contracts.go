// Package contracts defines the service interfaces of the visualizer.
//
// The Handlers struct in api/handlers and the pipeline in internal/visualize
// depend on these interfaces, so a stage can be swapped (or stubbed in
// tests) with a single change in the wiring code (pkg/server).
package contracts

import (
	"context"

	"github.com/tbuliHe/visualizer/pkg/models"
)

// ── Visualizer Service ──────────────────────────────────────

// VisualizerService turns a function description into plottable points.
// Implementation: internal/visualize.Service
//
// Errors are *visualize.Failure; callers map them to one stable message and
// pass the upstream diagnostic payload through.
type VisualizerService interface {
	Visualize(ctx context.Context, description string) ([]models.DataPoint, error)
}

// ── Completion Service ──────────────────────────────────────

// CompletionService obtains generated code for a request, re-attempting
// transient upstream failures internally.
// Implementation: internal/completion.Retrier
type CompletionService interface {
	// Complete returns the completion text and how many attempts were made.
	Complete(ctx context.Context, req models.CompletionRequest) (text string, attempts int, err error)
}
