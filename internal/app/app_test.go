package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/session"
	"github.com/lenslate/lenslate/pkg/relaycloud/mock"
	"github.com/lenslate/lenslate/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		PackageName:  "com.example.lenslate",
		APIKey:       "test-key",
		Port:         0, // ephemeral port for Run tests
		Env:          config.EnvDevelopment,
		UpstreamURL:  "wss://cloud.invalid/app-ws",
		SettingsPath: "testdata/does-not-exist.json",
		Tuning:       config.DefaultTuning(),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_WiresSubsystems(t *testing.T) {
	src := &mock.Source{}
	a, err := New(testConfig(), quietLogger(), WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a.Sessions() == nil {
		t.Fatal("no session registry wired")
	}

	// The registry must open sessions against the injected source, seeded
	// with the descriptor defaults (the missing file falls back to the
	// built-in schema).
	src.Stream = &mock.Stream{EventsCh: make(chan types.StreamEvent, 1)}
	err = a.Sessions().Open(t.Context(), session.OpenRequest{
		UserID:    "alice",
		SessionID: "s1",
	})
	if err != nil {
		t.Fatalf("Open through app wiring: %v", err)
	}
	if src.OpenStreamCallCount() != 1 {
		t.Errorf("OpenStream calls = %d, want 1", src.OpenStreamCallCount())
	}
	got, _ := src.OpenStreamCalls[0].Cfg.SourceLocale, src.OpenStreamCalls[0].Cfg.TargetLocale
	if got != "es-ES" {
		t.Errorf("subscription source locale = %q, want es-ES (builtin default)", got)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, err := New(testConfig(), quietLogger(), WithSource(&mock.Source{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the listener a moment to come up, then stop.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	src := &mock.Source{Stream: &mock.Stream{EventsCh: make(chan types.StreamEvent, 1)}}
	a, err := New(testConfig(), quietLogger(), WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Sessions().Open(t.Context(), session.OpenRequest{UserID: "alice", SessionID: "s1"}); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if a.Sessions().IsActive("alice") {
		t.Error("session still active after Shutdown")
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
