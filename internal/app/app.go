// Package app wires all Lenslate subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSource,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/internal/session"
	"github.com/lenslate/lenslate/internal/web"
	"github.com/lenslate/lenslate/pkg/relaycloud"
	"github.com/lenslate/lenslate/pkg/types"
)

// httpShutdownTimeout bounds the graceful drain of viewer connections when
// Run's context is cancelled.
const httpShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and orchestrates the translation relay.
type App struct {
	cfg *config.Config
	log *slog.Logger

	source     relaycloud.Source
	metrics    *observe.Metrics
	descriptor *config.DescriptorWatcher
	sessions   *session.Registry
	server     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects an upstream source instead of dialling the cloud.
func WithSource(s relaycloud.Source) Option {
	return func(a *App) { a.source = s }
}

// WithMetrics injects a metric set instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: the upstream client,
// the settings-descriptor watcher, the unsupported-combination policy, the
// session registry and the viewer HTTP server.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Upstream client ───────────────────────────────────────────────
	if a.source == nil {
		client, err := relaycloud.New(cfg.UpstreamURL, cfg.APIKey, cfg.PackageName,
			relaycloud.WithLogger(log.With("component", "relaycloud")),
		)
		if err != nil {
			return nil, fmt.Errorf("app: init upstream client: %w", err)
		}
		a.source = client
	}

	// ── 2. Settings descriptor (hot-reloaded) ────────────────────────────
	a.descriptor = config.NewDescriptorWatcher(cfg.SettingsPath, log,
		config.WithOnChange(func(_, _ *config.Descriptor) {
			log.Info("settings descriptor reloaded", "path", cfg.SettingsPath)
		}),
	)
	a.closers = append(a.closers, func() error {
		a.descriptor.Stop()
		return nil
	})

	// ── 3. Session registry ──────────────────────────────────────────────
	a.sessions = session.New(session.Config{
		Source: a.source,
		Defaults: func() types.UserSettings {
			return a.descriptor.Current().DefaultSettings()
		},
		Policy:  config.LoadPolicy(cfg.PolicyPath, log),
		Tuning:  cfg.Tuning,
		Metrics: a.metrics,
		Log:     log,
	})
	a.closers = append(a.closers, func() error {
		a.sessions.StopAll()
		return nil
	})

	// ── 4. Viewer HTTP server ────────────────────────────────────────────
	handler := web.New(web.Config{
		App:        cfg.PackageName,
		APIKey:     cfg.APIKey,
		Production: cfg.Env == config.EnvProduction,
		Sessions:   a.sessions,
		Descriptor: a.descriptor.Current,
		Metrics:    a.metrics,
		Log:        log,
	}).Handler()
	a.server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run serves HTTP until ctx is cancelled, then drains viewer connections
// with a deadline. Session teardown happens in Shutdown so a supervising
// main can bound it separately.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			// SSE streams can outlive the drain deadline; cut them off.
			a.server.Close()
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// Sessions exposes the registry for tests and tooling.
func (a *App) Sessions() *session.Registry { return a.sessions }
