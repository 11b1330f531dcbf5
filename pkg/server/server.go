// Package server provides the public entry point for initializing the
// visualizer server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
//
// Embedders that want a different completion backend build the config
// themselves and call NewWithConfig.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/tbuliHe/visualizer/internal/api"
	"github.com/tbuliHe/visualizer/internal/api/handlers"
	"github.com/tbuliHe/visualizer/internal/completion"
	"github.com/tbuliHe/visualizer/internal/config"
	"github.com/tbuliHe/visualizer/internal/guardrails"
	"github.com/tbuliHe/visualizer/internal/prompt"
	"github.com/tbuliHe/visualizer/internal/sandbox"
	"github.com/tbuliHe/visualizer/internal/telemetry"
	"github.com/tbuliHe/visualizer/internal/visualize"
)

// Server holds the initialized visualizer.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded configuration, immutable after startup.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// LoadConfig loads configuration from the default sources.
func LoadConfig() (*config.Config, error) {
	return config.Load("")
}

// New loads configuration and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig wires every pipeline stage from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	lang, err := sandbox.ParseLanguage(cfg.Sandbox.Language)
	if err != nil {
		return nil, err
	}
	executor, err := sandbox.New(sandbox.Config{
		Language:        lang,
		Timeout:         cfg.Sandbox.Timeout,
		MaxResultLength: cfg.Sandbox.MaxPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("init sandbox: %w", err)
	}
	log.Info().
		Str("language", string(lang)).
		Dur("timeout", cfg.Sandbox.Timeout).
		Msg("✅ Sandbox initialized")

	client := completion.NewClient(completion.Config{
		URL:           cfg.Completion.URL,
		APIKey:        cfg.Completion.APIKey,
		Timeout:       cfg.Completion.Timeout,
		RetryableCode: cfg.Completion.RetryableCode,
	})
	retrier := completion.NewRetrier(client, cfg.Completion.MaxAttempts)
	log.Info().
		Str("model", cfg.Completion.Model).
		Int("max_attempts", retrier.MaxAttempts()).
		Msg("✅ Completion client initialized")

	builder := &prompt.Builder{
		Model:    cfg.Completion.Model,
		Sampling: cfg.Completion.Sampling,
		Language: lang,
	}
	svc := visualize.NewService(builder, retrier, executor, cfg.Sandbox.MaxPoints)

	h := handlers.New(svc, guardrails.Guard{MaxLength: cfg.Server.MaxDescriptionLength}, cfg.Server.ErrorMessage)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
