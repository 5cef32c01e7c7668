package web

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lenslate/lenslate/internal/session"
	"github.com/lenslate/lenslate/pkg/relaycloud/mock"
	"github.com/lenslate/lenslate/pkg/types"
)

const testAPIKey = "test-api-key"

// newTestServer builds a Server over a registry backed by the mock source.
func newTestServer(t *testing.T, production bool) (*Server, *session.Registry, *mock.Source) {
	t.Helper()
	src := &mock.Source{}
	reg := session.New(session.Config{
		Source: src,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(reg.StopAll)

	srv := New(Config{
		App:        "com.example.lenslate",
		APIKey:     testAPIKey,
		Production: production,
		Sessions:   reg,
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return srv, reg, src
}

// openSession starts a session for userID through the registry with a
// dedicated mock stream the test controls.
func openSession(t *testing.T, reg *session.Registry, src *mock.Source, userID string) *mock.Stream {
	t.Helper()
	st := &mock.Stream{EventsCh: make(chan types.StreamEvent, 16)}
	src.Stream = st
	if err := reg.Open(t.Context(), session.OpenRequest{
		UserID:    userID,
		SessionID: "session-" + userID,
	}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
		App    string `json:"app"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.App != "com.example.lenslate" {
		t.Errorf("body = %+v, want healthy/com.example.lenslate", body)
	}
}

func TestLanguageSettings(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	auth := NewAuthenticator(testAPIKey, true, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("unauthorized without token", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/api/language-settings")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", res.StatusCode)
		}
	})

	t.Run("defaults without a session", func(t *testing.T) {
		req, _ := http.NewRequest("GET", ts.URL+"/api/language-settings", nil)
		req.Header.Set("Authorization", "Bearer "+auth.TokenFor("alice"))
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		var pair types.LanguagePair
		if err := json.NewDecoder(res.Body).Decode(&pair); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if pair.From != "Spanish" || pair.To != "English" {
			t.Errorf("pair = %+v, want Spanish->English", pair)
		}
	})
}

func TestSettingsSchema(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/settings-schema")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var body struct {
		Settings []struct {
			Key string `json:"key"`
		} `json:"settings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Settings) == 0 {
		t.Error("schema has no settings")
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/translation-events", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", res.StatusCode)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestWebhook(t *testing.T) {
	srv, reg, src := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	post := func(t *testing.T, token string, body any) *http.Response {
		t.Helper()
		data, _ := json.Marshal(body)
		req, _ := http.NewRequest("POST", ts.URL+"/webhook", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST /webhook: %v", err)
		}
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	t.Run("rejects bad credentials", func(t *testing.T) {
		res := post(t, "wrong-key", map[string]any{
			"type": "session_request", "sessionId": "s1", "userId": "alice",
		})
		if res.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", res.StatusCode)
		}
		if src.OpenStreamCallCount() != 0 {
			t.Error("unauthenticated webhook opened a session")
		}
	})

	t.Run("session request opens a session", func(t *testing.T) {
		src.Stream = &mock.Stream{EventsCh: make(chan types.StreamEvent, 1)}
		res := post(t, testAPIKey, map[string]any{
			"type": "session_request", "sessionId": "s1", "userId": "alice",
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		if src.OpenStreamCallCount() != 1 {
			t.Fatalf("OpenStream calls = %d, want 1", src.OpenStreamCallCount())
		}
		if !reg.IsActive("alice") {
			t.Error("session not active after webhook open")
		}
	})

	t.Run("stop request ends the session", func(t *testing.T) {
		res := post(t, testAPIKey, map[string]any{
			"type": "stop_request", "userId": "alice", "reason": "user-disabled",
		})
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		if reg.IsActive("alice") {
			t.Error("session still active after stop webhook")
		}
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		res := post(t, testAPIKey, map[string]any{"type": "mystery"})
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", res.StatusCode)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		req, _ := http.NewRequest("POST", ts.URL+"/webhook", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", res.StatusCode)
		}
	})
}

// sseEvent is one parsed frame from the event stream.
type sseEvent struct {
	Type string
	Data string
}

// readEvents parses n SSE frames from r, skipping keepalive comments.
func readEvents(t *testing.T, r *bufio.Reader, n int) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	for len(events) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read SSE stream after %d events: %v", len(events), err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.Type != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestTranslationEvents_SSE(t *testing.T) {
	srv, reg, src := newTestServer(t, true)
	auth := NewAuthenticator(testAPIKey, true, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	st := openSession(t, reg, src, "alice")

	// Two finalised utterances before the viewer arrives.
	for _, text := range []string{"hola", "buenos días"} {
		st.EventsCh <- types.StreamEvent{
			Kind: types.StreamTranslation,
			Translation: types.TranslationEvent{
				OriginalText:   text,
				TranslatedText: "<" + text + ">",
				SourceLocale:   "es-ES",
				TargetLocale:   "en-US",
				DidTranslate:   true,
				IsFinal:        true,
			},
		}
	}
	waitFor(t, "entries logged", func() bool { return st.ShowTextWallCallCount() >= 2 })

	res, err := http.Get(ts.URL + "/translation-events?token=" + auth.TokenFor("alice"))
	if err != nil {
		t.Fatalf("GET /translation-events: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(res.Body)
	events := readEvents(t, reader, 3)

	if events[0].Type != "connected" {
		t.Fatalf("first event = %q, want connected", events[0].Type)
	}
	for i, want := range []string{"hola", "buenos días"} {
		ev := events[i+1]
		if ev.Type != "translation" {
			t.Fatalf("event %d type = %q, want translation", i+1, ev.Type)
		}
		var entry types.ConversationEntry
		if err := json.Unmarshal([]byte(ev.Data), &entry); err != nil {
			t.Fatalf("decode entry: %v", err)
		}
		if entry.OriginalText != want || !entry.IsFinal {
			t.Errorf("replay entry %d = %+v, want original %q final", i, entry, want)
		}
	}

	// A live event after the replay.
	st.EventsCh <- types.StreamEvent{
		Kind: types.StreamTranslation,
		Translation: types.TranslationEvent{
			OriginalText:   "adiós",
			TranslatedText: "<adiós>",
			SourceLocale:   "es-ES",
			TargetLocale:   "en-US",
			DidTranslate:   true,
			IsFinal:        true,
		},
	}
	live := readEvents(t, reader, 1)[0]
	if live.Type != "translation" || !strings.Contains(live.Data, "adiós") {
		t.Errorf("live event = %+v, want translation carrying adiós", live)
	}
}

func TestTranslationEvents_Unauthorized(t *testing.T) {
	srv, _, _ := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/translation-events?token=alice:bogus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", res.StatusCode)
	}
	io.Copy(io.Discard, res.Body)
}
