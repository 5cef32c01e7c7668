package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// DevUserID is the user a tokenless viewer is mapped to in development mode
// when no session is live.
const DevUserID = "dev-user"

// Authenticator validates viewer tokens of the form
//
//	<userId>:hex(sha256(userId || hex(sha256(apiKey))))
//
// The token is self-describing: the user id travels in the clear and the
// hash binds it to the app's API key, so the server needs no token store.
// Comparison is constant-time.
type Authenticator struct {
	hashedKey  string
	production bool

	// fallback supplies the dev user when a token is missing or invalid in
	// development mode. Returns "" to signal no live user.
	fallback func() string
}

// NewAuthenticator derives the shared secret from apiKey. In production mode
// every authenticated route requires a valid token; otherwise failures fall
// back to fallback() or [DevUserID].
func NewAuthenticator(apiKey string, production bool, fallback func() string) *Authenticator {
	sum := sha256.Sum256([]byte(apiKey))
	return &Authenticator{
		hashedKey:  hex.EncodeToString(sum[:]),
		production: production,
		fallback:   fallback,
	}
}

// TokenFor returns the valid token for userID. Used by tooling and tests;
// the production issuer is the cloud, which derives the same value.
func (a *Authenticator) TokenFor(userID string) string {
	return userID + ":" + a.signature(userID)
}

func (a *Authenticator) signature(userID string) string {
	sum := sha256.Sum256([]byte(userID + a.hashedKey))
	return hex.EncodeToString(sum[:])
}

// Verify checks a raw token and returns the user id it names.
func (a *Authenticator) Verify(token string) (userID string, ok bool) {
	userID, sig, found := strings.Cut(token, ":")
	if !found || userID == "" {
		return "", false
	}
	want := a.signature(userID)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		return "", false
	}
	return userID, true
}

// Authenticate resolves the viewer behind r. The token is taken from the
// Authorization header (Bearer scheme) or, for browser APIs that cannot set
// headers on an EventSource, the token query parameter. In development mode
// a missing or invalid token resolves to the fallback user so local viewers
// work without wiring tokens.
func (a *Authenticator) Authenticate(r *http.Request) (userID string, ok bool) {
	if userID, ok = a.Verify(extractToken(r)); ok {
		return userID, true
	}
	if a.production {
		return "", false
	}
	if a.fallback != nil {
		if id := a.fallback(); id != "" {
			return id, true
		}
	}
	return DevUserID, true
}

// extractToken pulls the raw token from the Authorization header or the
// token query parameter, in that order.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return r.URL.Query().Get("token")
}
