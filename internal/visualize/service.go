// Package visualize runs the description-to-data-points pipeline:
// prompt, completion with retry, sanitize, sandbox, extract.
package visualize

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbuliHe/visualizer/internal/completion"
	"github.com/tbuliHe/visualizer/internal/extract"
	"github.com/tbuliHe/visualizer/internal/prompt"
	"github.com/tbuliHe/visualizer/internal/sandbox"
	"github.com/tbuliHe/visualizer/internal/sanitize"
	"github.com/tbuliHe/visualizer/internal/telemetry"
	"github.com/tbuliHe/visualizer/pkg/contracts"
	"github.com/tbuliHe/visualizer/pkg/models"
)

var tracer = otel.Tracer("visualizer/pipeline")

// Service runs the pipeline. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	builder   *prompt.Builder
	completer contracts.CompletionService
	executor  sandbox.Executor
	maxPoints int
}

// NewService wires the pipeline stages. maxPoints <= 0 selects
// extract.DefaultMaxPoints.
func NewService(builder *prompt.Builder, completer contracts.CompletionService, executor sandbox.Executor, maxPoints int) *Service {
	return &Service{
		builder:   builder,
		completer: completer,
		executor:  executor,
		maxPoints: maxPoints,
	}
}

// Visualize turns a function description into an ordered series of data
// points. Every failure is a *Failure.
func (s *Service) Visualize(ctx context.Context, description string) ([]models.DataPoint, error) {
	ctx, span := tracer.Start(ctx, "visualize",
		trace.WithAttributes(
			attribute.Int("visualizer.description_length", len(description)),
			attribute.String("visualizer.sandbox_language", string(s.executor.Language())),
		),
	)
	defer span.End()

	points, attempts, err := s.run(ctx, description)
	if err != nil {
		f := &Failure{
			Kind:     kindOf(err),
			Attempts: attempts,
			Details:  completion.Payload(err),
			Err:      err,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(f.Kind))
		telemetry.RequestsTotal.WithLabelValues(string(f.Kind)).Inc()
		log.Warn().
			Err(err).
			Str("kind", string(f.Kind)).
			Int("attempts", attempts).
			Msg("Visualize failed")
		return nil, f
	}

	span.SetAttributes(attribute.Int("visualizer.data_points", len(points)))
	telemetry.RequestsTotal.WithLabelValues("success").Inc()
	telemetry.DataPointsReturned.Observe(float64(len(points)))
	log.Info().
		Int("attempts", attempts).
		Int("data_points", len(points)).
		Msg("Visualize succeeded")
	return points, nil
}

func (s *Service) run(ctx context.Context, description string) ([]models.DataPoint, int, error) {
	req := s.builder.Build(description)

	raw, attempts, err := s.complete(ctx, req)
	if err != nil {
		return nil, attempts, err
	}

	source := sanitize.Code(raw)
	log.Debug().Str("source", source).Msg("Generated program")

	result, err := s.execute(ctx, source)
	if err != nil {
		return nil, attempts, err
	}

	points, err := extract.Series(result.Value, s.maxPoints)
	if err != nil {
		return nil, attempts, err
	}
	return points, attempts, nil
}

func (s *Service) complete(ctx context.Context, req models.CompletionRequest) (string, int, error) {
	ctx, span := tracer.Start(ctx, "visualize.complete")
	defer span.End()

	raw, attempts, err := s.completer.Complete(ctx, req)
	span.SetAttributes(attribute.Int("visualizer.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
	}
	return raw, attempts, err
}

func (s *Service) execute(ctx context.Context, source string) (*sandbox.Result, error) {
	ctx, span := tracer.Start(ctx, "visualize.execute")
	defer span.End()

	lang := string(s.executor.Language())
	start := time.Now()
	result, err := s.executor.Execute(ctx, source)
	telemetry.SandboxDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = string(kindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	telemetry.SandboxExecutionsTotal.WithLabelValues(lang, outcome).Inc()

	var execErr *sandbox.ExecutionError
	if errors.As(err, &execErr) {
		span.SetAttributes(attribute.String("visualizer.run_id", execErr.RunID))
	} else if result != nil {
		span.SetAttributes(attribute.String("visualizer.run_id", result.RunID))
	}
	return result, err
}
