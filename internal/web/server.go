// Package web serves the viewer surface and the cloud webhook: the
// server-sent event stream browsers watch conversations on, the read-only
// REST snapshots, the session-open/stop webhook and the Prometheus scrape
// endpoint.
//
// Authentication uses self-describing viewer tokens derived from the app's
// API key (see [Authenticator]); the webhook authenticates with the API key
// itself. CORS is permissive so the viewer page can be hosted anywhere.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/health"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/internal/session"
)

// Config wires a Server's dependencies.
type Config struct {
	// App is the package name reported by /health.
	App string

	// APIKey seeds viewer token derivation and authenticates the webhook.
	APIKey string

	// Production enforces viewer tokens; development falls back to a dev
	// user.
	Production bool

	// Sessions is the live session registry.
	Sessions *session.Registry

	// Descriptor returns the current settings descriptor for
	// /api/settings-schema. Nil serves the built-in schema.
	Descriptor func() *config.Descriptor

	// Metrics receives HTTP instrumentation. Defaults to the process-wide
	// set.
	Metrics *observe.Metrics

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Server owns the HTTP handler tree of the viewer surface.
type Server struct {
	app        string
	sessions   *session.Registry
	auth       *Authenticator
	apiKey     string
	descriptor func() *config.Descriptor
	metrics    *observe.Metrics
	log        *slog.Logger
}

// New creates a Server. cfg.Sessions must be set.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	descriptor := cfg.Descriptor
	if descriptor == nil {
		descriptor = config.BuiltinDescriptor
	}
	s := &Server{
		app:        cfg.App,
		sessions:   cfg.Sessions,
		apiKey:     cfg.APIKey,
		descriptor: descriptor,
		metrics:    metrics,
		log:        log.With("component", "web"),
	}
	s.auth = NewAuthenticator(cfg.APIKey, cfg.Production, s.firstActiveUser)
	return s
}

// Handler builds the full route tree: viewer routes, webhook, health and
// metrics, wrapped in CORS and observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /translation-events", s.handleEvents)
	mux.HandleFunc("GET /api/language-settings", s.handleLanguageSettings)
	mux.HandleFunc("GET /api/settings-schema", s.handleSettingsSchema)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(s.app).Register(mux)

	return corsMiddleware(observe.Middleware(s.metrics)(mux))
}

// corsMiddleware answers preflights and opens every route to browser
// viewers. Deployments that need restriction put a proxy in front; the
// engine itself holds no per-origin state worth protecting beyond the token
// check.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLanguageSettings serves the {from, to} snapshot of the viewer's
// current language pair.
func (s *Server) handleLanguageSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}
	pair, _ := s.sessions.LanguagePair(userID)
	writeJSON(w, http.StatusOK, pair)
}

// handleSettingsSchema serves the settings descriptor read-only so viewer
// UIs can render the same settings form the cloud does.
func (s *Server) handleSettingsSchema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.descriptor())
}

// firstActiveUser picks the dev-mode fallback viewer identity: the first
// live session if any, so a local viewer lands on real traffic.
func (s *Server) firstActiveUser() string {
	ids := s.sessions.ActiveUserIDs()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
