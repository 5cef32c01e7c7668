package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/lenslate/lenslate/internal/session"
	"github.com/lenslate/lenslate/pkg/types"
)

// Webhook request types sent by the cloud.
const (
	webhookSessionRequest = "session_request"
	webhookStopRequest    = "stop_request"
)

// webhookRequest is the session lifecycle notification from the cloud.
type webhookRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`

	// ModelName is the connected glasses model, when the cloud knows it.
	ModelName string `json:"modelName,omitempty"`

	// Settings optionally seeds the session before the connection ack's
	// authoritative push.
	Settings []types.SettingValue `json:"settings,omitempty"`

	// Reason accompanies stop requests.
	Reason string `json:"reason,omitempty"`
}

type webhookResponse struct {
	Status string `json:"status"`
}

// handleWebhook receives session open and stop notifications. The cloud
// authenticates with the app's API key as a bearer token.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(extractToken(r)), []byte(s.apiKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid webhook credentials")
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	switch req.Type {
	case webhookSessionRequest:
		err := s.sessions.Open(r.Context(), session.OpenRequest{
			UserID:      req.UserID,
			SessionID:   req.SessionID,
			DeviceModel: req.ModelName,
			Settings:    req.Settings,
		})
		if err != nil {
			s.log.Error("session open failed",
				"user_id", req.UserID,
				"session_id", req.SessionID,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, "session open failed")
			return
		}
		writeJSON(w, http.StatusOK, webhookResponse{Status: "success"})

	case webhookStopRequest:
		if !s.sessions.Stop(req.UserID) {
			s.log.Debug("stop for inactive user", "user_id", req.UserID, "reason", req.Reason)
		}
		writeJSON(w, http.StatusOK, webhookResponse{Status: "success"})

	default:
		writeError(w, http.StatusBadRequest, "unknown webhook type")
	}
}
