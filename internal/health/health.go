// Package health serves the liveness and readiness probes.
//
// /health answers in the shape the cloud's prober expects:
// {"status": "healthy", "app": "<package name>", "timestamp": ...}.
// /readyz additionally runs any registered dependency checks and fails with
// 503 until all of them pass.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout caps each readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency for /readyz. Check returns nil when the
// dependency is usable; the error text is surfaced in the response body.
type Checker struct {
	// Name keys the check's result in the JSON response, e.g. "upstream" or
	// "settings-descriptor".
	Name string

	Check func(ctx context.Context) error
}

type liveness struct {
	Status    string `json:"status"`
	App       string `json:"app"`
	Timestamp string `json:"timestamp"`
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers both probes for one app. The checker list is fixed at
// construction, so the handler needs no locking.
type Handler struct {
	app      string
	checkers []Checker
	now      func() time.Time
}

// New creates a Handler reporting app as its identity. Checkers run in the
// given order on every /readyz request.
func New(app string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{app: app, checkers: c, now: time.Now}
}

// Health always answers 200: a process that can serve HTTP is alive.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveness{
		Status:    "healthy",
		App:       h.app,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Readyz answers 200 only when every checker passes, 503 otherwise. Each
// check gets its own checkTimeout deadline under the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := readiness{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
