package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lenslate/lenslate/internal/fanout"
)

// keepaliveInterval spaces the SSE comment frames that keep idle viewer
// connections from being reaped by proxies.
const keepaliveInterval = 30 * time.Second

// handleEvents is the long-lived viewer stream. The subscriber channel is
// pre-loaded by the hub with the connected event and the conversation
// replay, so this handler only drains and serialises.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.auth.Authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Reverse proxies must not buffer the stream.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id, events := s.sessions.Subscribe(userID)
	defer s.sessions.Unsubscribe(userID, id)

	s.log.Info("viewer connected", "user_id", userID, "subscriber_id", id)
	defer s.log.Info("viewer disconnected", "user_id", userID, "subscriber_id", id)

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, open := <-events:
			// Closure means the hub dropped this viewer for not draining;
			// the deferred Unsubscribe is then a no-op.
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent serialises one hub event as an SSE frame:
//
//	event: <type>
//	data: <json>
func writeEvent(w http.ResponseWriter, ev fanout.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
