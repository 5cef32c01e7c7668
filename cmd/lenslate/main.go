// Command lenslate is the translation relay and display engine for the
// glasses cloud: it ingests per-user translation streams, stabilises interim
// captions for the heads-up display and fans the conversation out to browser
// viewers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lenslate/lenslate/internal/app"
	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/observe"
)

// version is stamped by the build; "dev" for local runs.
var version = "dev"

// shutdownTimeout bounds the teardown of sessions and exporters after Run
// returns.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lenslate: %v\n", err)
		return 1
	}

	// ── Logger ───────────────────────────────────────────────────────────
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	slog.Info("lenslate starting",
		"version", version,
		"package_name", cfg.PackageName,
		"port", cfg.Port,
		"env", string(cfg.Env),
		"upstream", cfg.UpstreamURL,
	)
	cfg.LogNotes(logger)

	// ── Signal context ───────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lenslate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Application ──────────────────────────────────────────────────────
	application, err := app.New(cfg, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	exit := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// newLogger builds the process logger: JSON in production so log shippers
// get structure, text for local development.
func newLogger(cfg *config.Config) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.Tuning.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Env == config.EnvProduction {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
