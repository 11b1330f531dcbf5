// Visualizer turns natural-language function descriptions into plottable
// data points.
//
// It provides:
//   - POST /api/visualize (completion, sandboxed execution, validation)
//   - Health, version and Prometheus metrics endpoints
//   - Optional OTLP tracing and API key auth

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbuliHe/visualizer/pkg/server"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("📈 Visualizer starting...")

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	srv, err := server.NewWithConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}
	defer srv.ShutdownFunc(ctx)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", srv.Port),
		Handler:     srv.Handler,
		ReadTimeout: 30 * time.Second,
		// Must outlast every completion attempt plus the sandbox ceiling.
		WriteTimeout: time.Duration(cfg.Completion.MaxAttempts)*cfg.Completion.Timeout + cfg.Sandbox.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Int("port", srv.Port).
		Str("version", cfg.Version).
		Msg("🚀 Visualizer is ready")

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// setupLogging applies the configured level and output format.
func setupLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
