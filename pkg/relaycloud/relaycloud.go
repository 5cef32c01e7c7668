// Package relaycloud implements the client side of the upstream cloud
// protocol: one WebSocket session per user that carries translation events
// down and display requests up.
//
// A Client is configured once with the cloud endpoint and app credentials.
// Each glasses session opens one Stream, which surfaces translation and
// settings messages in arrival order on a single channel and accepts display
// and subscription writes, serialized through one writer goroutine. Source
// and Stream are interfaces so tests and dev mode can substitute a fake
// upstream for the live cloud connection.
package relaycloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lenslate/lenslate/pkg/types"
)

// Compile-time assertions that Client and stream satisfy the interfaces.
var _ Source = (*Client)(nil)
var _ Stream = (*stream)(nil)

// ErrClosed is returned by Stream write operations after Close.
var ErrClosed = errors.New("relaycloud: stream is closed")

// ── Interfaces ─────────────────────────────────────────────────────────────────

// StreamConfig identifies the session a Stream belongs to and selects its
// initial translation subscription.
type StreamConfig struct {
	// SessionID is the upstream session identifier, as delivered by the
	// session-open webhook.
	SessionID string

	// UserID identifies the glasses wearer.
	UserID string

	// SourceLocale and TargetLocale select the initial subscription. The
	// stream may still deliver events in either direction of the pair.
	SourceLocale string
	TargetLocale string
}

// Source opens upstream streams. Implemented by Client for the live cloud
// and by mock.Source for tests.
type Source interface {
	// OpenStream dials the upstream, performs the connection handshake and
	// subscribes to the translation stream of cfg's language pair. The
	// returned Stream is live immediately; the cloud's connection ack (and
	// any settings it carries) arrives as the first event on the stream.
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one open upstream session.
//
// All methods are safe for concurrent use. Callers must call Close when the
// stream is no longer needed; after Close returns, the Events channel is
// closed.
type Stream interface {
	// Events returns the ordered channel of upstream messages. The channel
	// is closed when the stream ends, whether by Close or by the upstream
	// dropping the connection; consumers treat closure as session stop.
	Events() <-chan types.StreamEvent

	// UpdateSubscription replaces the active subscription set with the
	// translation stream of the given language pair. An empty pair clears
	// the set, leaving the connection open for display writes only.
	UpdateSubscription(sourceLocale, targetLocale string) error

	// ShowTextWall queues a text-wall display request for the glasses
	// primary view. An empty text clears the display. A zero
	// opts.DurationMs leaves the text up until the next write.
	ShowTextWall(text string, opts types.DisplayOptions) error

	// Err returns the error that ended the stream, or nil while it is live
	// or after a clean close.
	Err() error

	// Close tears the stream down. Pending display writes are discarded.
	// Close is idempotent and safe to call concurrently.
	Close() error
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithLogger sets the logger used for dropped-message and teardown warnings.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client implements Source against the live cloud endpoint.
type Client struct {
	url         string
	apiKey      string
	packageName string
	log         *slog.Logger
}

// New creates a Client for the cloud at url. All three arguments are
// required: url is the ws:// or wss:// endpoint, apiKey authenticates the
// app and packageName identifies it in every message.
func New(url, apiKey, packageName string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.New("relaycloud: url must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("relaycloud: apiKey must not be empty")
	}
	if packageName == "" {
		return nil, errors.New("relaycloud: packageName must not be empty")
	}
	c := &Client{
		url:         url,
		apiKey:      apiKey,
		packageName: packageName,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// OpenStream dials the cloud, sends the connection init and the initial
// subscription, and starts the stream's read and write loops. The ctx
// deadline covers dialing and the handshake writes only; the stream itself
// lives until Close or upstream disconnect.
func (c *Client) OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("relaycloud: dial %s: %w", c.url, err)
	}

	init := connectionInit{
		Type:        msgConnectionInit,
		SessionID:   cfg.SessionID,
		PackageName: c.packageName,
		APIKey:      c.apiKey,
	}
	if err := writeMessage(ctx, conn, init); err != nil {
		conn.Close(websocket.StatusInternalError, "connection init failed")
		return nil, fmt.Errorf("relaycloud: connection init: %w", err)
	}

	sub := subscriptionUpdate{
		Type:          msgSubscriptionUpdate,
		PackageName:   c.packageName,
		SessionID:     cfg.SessionID,
		Subscriptions: subscriptionList(cfg.SourceLocale, cfg.TargetLocale),
	}
	if err := writeMessage(ctx, conn, sub); err != nil {
		conn.Close(websocket.StatusInternalError, "subscription failed")
		return nil, fmt.Errorf("relaycloud: subscribe: %w", err)
	}

	s := &stream{
		conn:        conn,
		packageName: c.packageName,
		sessionID:   cfg.SessionID,
		userID:      cfg.UserID,
		log:         c.log.With("user_id", cfg.UserID),
		events:      make(chan types.StreamEvent, 64),
		outgoing:    make(chan []byte, 16),
		done:        make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

// writeMessage marshals v and writes it as a text frame on conn.
func writeMessage(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", v, err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

const (
	msgConnectionInit     = "connection_init"
	msgSubscriptionUpdate = "subscription_update"
	msgDisplayEvent       = "display_event"

	viewMain       = "main"
	layoutTextWall = "text_wall"
)

type connectionInit struct {
	Type        string `json:"type"`
	SessionID   string `json:"sessionId"`
	PackageName string `json:"packageName"`
	APIKey      string `json:"apiKey"`
}

type subscriptionUpdate struct {
	Type          string   `json:"type"`
	PackageName   string   `json:"packageName"`
	SessionID     string   `json:"sessionId"`
	Subscriptions []string `json:"subscriptions"`
}

type displayEvent struct {
	Type        string        `json:"type"`
	PackageName string        `json:"packageName"`
	SessionID   string        `json:"sessionId"`
	View        string        `json:"view"`
	Layout      displayLayout `json:"layout"`
	DurationMs  int           `json:"durationMs,omitempty"`
}

type displayLayout struct {
	LayoutType string `json:"layoutType"`
	Text       string `json:"text"`
}

// translationStream returns the subscription name for the translation stream
// of the given direction, e.g. "translation:es-ES-to-en-US".
func translationStream(sourceLocale, targetLocale string) string {
	return fmt.Sprintf("translation:%s-to-%s", sourceLocale, targetLocale)
}

// subscriptionList builds the subscription set for a language pair. An empty
// pair yields an empty (non-nil) set so the wire message carries "[]" and the
// cloud stops delivering stream data.
func subscriptionList(sourceLocale, targetLocale string) []string {
	if sourceLocale == "" && targetLocale == "" {
		return []string{}
	}
	return []string{translationStream(sourceLocale, targetLocale)}
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

const (
	msgConnectionAck   = "connection_ack"
	msgConnectionError = "connection_error"
	msgDataStream      = "data_stream"
	msgSettingsUpdate  = "settings_update"

	streamTypeTranslation = "translation"
)

type serverMessage struct {
	Type       string               `json:"type"`
	SessionID  string               `json:"sessionId"`
	StreamType string               `json:"streamType"`
	Data       json.RawMessage      `json:"data"`
	Settings   []types.SettingValue `json:"settings"`
	Message    string               `json:"message"`
}

type translationPayload struct {
	Text               string `json:"text"`
	OriginalText       string `json:"originalText"`
	TranscribeLanguage string `json:"transcribeLanguage"`
	TranslateLanguage  string `json:"translateLanguage"`
	DidTranslate       bool   `json:"didTranslate"`
	IsFinal            bool   `json:"isFinal"`
}

// parseServerMessage converts one upstream message into a StreamEvent. ok
// reports whether the message carries an event for the engine; err is non-nil
// when the message is malformed (or an explicit upstream error) and should be
// logged. Acks without settings, keepalives and unknown types are skipped
// silently.
func parseServerMessage(data []byte, now time.Time) (types.StreamEvent, bool, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.StreamEvent{}, false, fmt.Errorf("decode: %w", err)
	}

	switch msg.Type {
	case msgDataStream:
		if !isTranslationStream(msg.StreamType) {
			return types.StreamEvent{}, false, nil
		}
		var p translationPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			return types.StreamEvent{}, false, fmt.Errorf("decode %s payload: %w", msg.StreamType, err)
		}
		return types.StreamEvent{
			Kind: types.StreamTranslation,
			Translation: types.TranslationEvent{
				SessionID:      msg.SessionID,
				OriginalText:   p.OriginalText,
				TranslatedText: p.Text,
				SourceLocale:   p.TranscribeLanguage,
				TargetLocale:   p.TranslateLanguage,
				DidTranslate:   p.DidTranslate,
				IsFinal:        p.IsFinal,
				ReceivedAt:     now,
			},
		}, true, nil

	case msgConnectionAck, msgSettingsUpdate:
		if len(msg.Settings) == 0 {
			return types.StreamEvent{}, false, nil
		}
		return types.StreamEvent{
			Kind:     types.StreamSettings,
			Settings: msg.Settings,
		}, true, nil

	case msgConnectionError:
		return types.StreamEvent{}, false, fmt.Errorf("upstream error: %s", msg.Message)

	default:
		return types.StreamEvent{}, false, nil
	}
}

// isTranslationStream matches "translation" itself and qualified names such
// as "translation:es-ES-to-en-US".
func isTranslationStream(streamType string) bool {
	if streamType == streamTypeTranslation {
		return true
	}
	return len(streamType) > len(streamTypeTranslation) &&
		streamType[:len(streamTypeTranslation)+1] == streamTypeTranslation+":"
}

// ── stream ─────────────────────────────────────────────────────────────────────

// stream is a live upstream session. It owns the events channel: the read
// loop closes it on exit.
type stream struct {
	conn        *websocket.Conn
	packageName string
	sessionID   string
	userID      string
	log         *slog.Logger

	events   chan types.StreamEvent
	outgoing chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu     sync.Mutex
	errVal error
}

// Events returns the ordered channel of upstream messages.
func (s *stream) Events() <-chan types.StreamEvent { return s.events }

// UpdateSubscription replaces the active subscription set with the
// translation stream of the given pair, or clears it for an empty pair.
func (s *stream) UpdateSubscription(sourceLocale, targetLocale string) error {
	return s.send(subscriptionUpdate{
		Type:          msgSubscriptionUpdate,
		PackageName:   s.packageName,
		SessionID:     s.sessionID,
		Subscriptions: subscriptionList(sourceLocale, targetLocale),
	})
}

// ShowTextWall queues a text-wall display request for the glasses.
func (s *stream) ShowTextWall(text string, opts types.DisplayOptions) error {
	return s.send(displayEvent{
		Type:        msgDisplayEvent,
		PackageName: s.packageName,
		SessionID:   s.sessionID,
		View:        viewMain,
		Layout:      displayLayout{LayoutType: layoutTextWall, Text: text},
		DurationMs:  opts.DurationMs,
	})
}

// send marshals v and queues it for the writer goroutine.
func (s *stream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relaycloud: marshal %T: %w", v, err)
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.outgoing <- data:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Err returns the error that ended the stream, if any.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

// Close tears the stream down. Closing the connection unblocks the read
// loop, which in turn closes the events channel before Close returns.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop serializes outgoing frames onto the connection.
func (s *stream) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case data := <-s.outgoing:
			if err := s.conn.Write(context.Background(), websocket.MessageText, data); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop receives upstream messages, stamps translation events with the
// stream's identity and delivers them in order. The events channel is
// bounded: a stalled consumer blocks the loop and backpressures the socket.
func (s *stream) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(context.Background())
		if err != nil {
			s.recordReadError(err)
			return
		}

		ev, ok, perr := parseServerMessage(data, time.Now())
		if perr != nil {
			s.log.Warn("dropping malformed upstream message", "error", perr)
			continue
		}
		if !ok {
			continue
		}

		if ev.Kind == types.StreamTranslation {
			ev.Translation.SessionID = s.sessionID
			ev.Translation.UserID = s.userID
		}

		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// recordReadError keeps the first abnormal disconnect cause for Err. Clean
// closes, whether initiated by Close or by the peer, are not errors.
func (s *stream) recordReadError(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	s.setErr(err)
	s.log.Warn("upstream connection lost", "error", err)
}
