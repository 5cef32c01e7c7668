// Package session runs the live translation sessions.
//
// A [Registry] keys sessions by user id. Each live session is one worker
// goroutine owning the whole display pipeline for that user: the upstream
// stream, the confidence stabiliser, the caption formatter, the write
// debouncer and the conversation log. Viewer fan-out hubs also live here,
// but deliberately outside the session lifecycle: a hub is created the
// first time a user is seen and survives session stops, so a dashboard
// watching an idle user keeps its subscription and picks up the next
// session's events without reconnecting.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/conversation"
	"github.com/lenslate/lenslate/internal/fanout"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/pkg/relaycloud"
	"github.com/lenslate/lenslate/pkg/types"
)

// Config wires a Registry's dependencies.
type Config struct {
	// Source opens upstream translation streams. Required.
	Source relaycloud.Source

	// Defaults supplies the settings a session starts with until the
	// cloud's first settings push arrives. Called per open so descriptor
	// hot-reloads take effect. Defaults to the built-in descriptor.
	Defaults func() types.UserSettings

	// Policy lists unsupported device/language display combinations.
	// Nil allows everything.
	Policy *config.Policy

	// Tuning carries the behavioural knobs. Zero fields use the
	// component defaults.
	Tuning config.Tuning

	// Metrics receives instrumentation. Defaults to the process-wide set.
	Metrics *observe.Metrics

	// Log defaults to slog.Default().
	Log *slog.Logger
}

// Registry owns every live session and the per-user viewer hubs.
type Registry struct {
	source   relaycloud.Source
	defaults func() types.UserSettings
	policy   *config.Policy
	tuning   config.Tuning
	metrics  *observe.Metrics
	log      *slog.Logger

	mu    sync.Mutex
	users map[string]*userSlot
}

// userSlot is everything the registry keeps per user id. The hub persists;
// the worker comes and goes with sessions.
type userSlot struct {
	hub    *fanout.Hub
	worker *worker
}

// New creates a Registry. cfg.Source must be set.
func New(cfg Config) *Registry {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = func() types.UserSettings {
			return config.BuiltinDescriptor().DefaultSettings()
		}
	}
	tuning := cfg.Tuning
	if tuning.InactivityTimeout <= 0 {
		tuning.InactivityTimeout = config.DefaultTuning().InactivityTimeout
	}
	return &Registry{
		source:   cfg.Source,
		defaults: defaults,
		policy:   cfg.Policy,
		tuning:   tuning,
		metrics:  metrics,
		log:      log,
		users:    make(map[string]*userSlot),
	}
}

// OpenRequest describes a session-open signal from the cloud webhook.
type OpenRequest struct {
	UserID    string
	SessionID string

	// DeviceModel is the connected glasses model when the webhook carries
	// it. Matched against the unsupported-combination policy.
	DeviceModel string

	// Settings are the initial settings delivered with the open, folded
	// onto the descriptor defaults. Usually empty; the cloud's
	// connection ack carries the authoritative set.
	Settings []types.SettingValue
}

// Open starts the session for req.UserID. An open for a user with a live
// session supersedes it: the prior session's timers and stream are torn
// down first, and its conversation log carries over so viewers keep their
// history across the handoff. A user whose device cannot display the
// target language still gets a connection, but only to show a warning
// caption; no translation stream is subscribed.
func (r *Registry) Open(ctx context.Context, req OpenRequest) error {
	if req.UserID == "" || req.SessionID == "" {
		return errors.New("session: open needs a user id and a session id")
	}

	settings := config.ApplySettings(r.defaults(), req.Settings)
	reason, blocked := r.policy.Check(req.DeviceModel, settings.TargetLanguage)

	srcLocale, _ := types.LocaleFor(settings.SourceLanguage)
	tgtLocale, _ := types.LocaleFor(settings.TargetLanguage)
	subSrc, subTgt := srcLocale, tgtLocale
	if blocked {
		subSrc, subTgt = "", ""
	}

	stream, err := r.source.OpenStream(ctx, relaycloud.StreamConfig{
		SessionID:    req.SessionID,
		UserID:       req.UserID,
		SourceLocale: subSrc,
		TargetLocale: subTgt,
	})
	if err != nil {
		r.metrics.RecordUpstreamError(ctx, "dial")
		return fmt.Errorf("session: open upstream stream: %w", err)
	}

	r.mu.Lock()
	slot := r.slot(req.UserID)
	old := slot.worker
	r.mu.Unlock()

	mode := "new"
	var convo *conversation.Log
	if old != nil && !old.stopped() {
		mode = "supersede"
		old.stop()
		convo = old.convo
	} else {
		old = nil
		convo = conversation.NewLog(conversation.Config{MaxEntries: r.tuning.MaxLogEntries})
	}
	convo.SetLanguagePair(settings.SourceLanguage, settings.TargetLanguage)

	w := newWorker(workerConfig{
		userID:      req.UserID,
		sessionID:   req.SessionID,
		deviceModel: req.DeviceModel,
		stream:      stream,
		hub:         slot.hub,
		convo:       convo,
		settings:    settings,
		policy:      r.policy,
		tuning:      r.tuning,
		metrics:     r.metrics,
		log:         r.log,
		onStop:      r.remove,
	})
	if blocked {
		w.blocked = true
		w.warnUnsupported(reason)
		r.log.Warn("unsupported display combination",
			"user_id", req.UserID,
			"device_model", req.DeviceModel,
			"target_language", settings.TargetLanguage,
		)
	}
	w.start()

	r.mu.Lock()
	prev := slot.worker
	slot.worker = w
	r.mu.Unlock()
	// A concurrent open for the same user may have won the slot between
	// our two critical sections; the later registration wins and the
	// displaced worker is stopped.
	if prev != nil && prev != old {
		prev.stop()
	}

	r.metrics.ActiveSessions.Add(ctx, 1)
	r.metrics.RecordSessionOpened(ctx, mode)
	r.log.Info("session started",
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"mode", mode,
		"device_model", req.DeviceModel,
	)
	return nil
}

// Stop ends the session for userID if one is live and reports whether it
// did. Viewer subscriptions survive and will see the next session under
// the same user id.
func (r *Registry) Stop(userID string) bool {
	r.mu.Lock()
	var w *worker
	if slot, ok := r.users[userID]; ok {
		w = slot.worker
	}
	r.mu.Unlock()
	if w == nil {
		return false
	}
	w.stop()
	return true
}

// StopAll ends every live session. Used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	workers := make([]*worker, 0, len(r.users))
	for _, slot := range r.users {
		if slot.worker != nil {
			workers = append(workers, slot.worker)
		}
	}
	r.mu.Unlock()
	for _, w := range workers {
		w.stop()
	}
}

// Subscribe attaches a viewer to userID's event feed and returns the
// subscription id and channel. With a live session the registration runs
// on the session worker, making the history replay gap-free against live
// events; without one the viewer joins the hub and waits for a session.
func (r *Registry) Subscribe(userID string) (string, <-chan fanout.Event) {
	r.mu.Lock()
	slot := r.slot(userID)
	w := slot.worker
	hub := slot.hub
	r.mu.Unlock()

	if w != nil && !w.stopped() {
		req := &subscribeRequest{reply: make(chan subscription, 1)}
		select {
		case w.subCh <- req:
			sub := <-req.reply
			r.metrics.ActiveSubscribers.Add(context.Background(), 1)
			return sub.id, sub.ch
		case <-w.done:
			// Session ended while attaching; take the idle path.
		}
	}
	id, ch := hub.Subscribe(nil)
	r.metrics.ActiveSubscribers.Add(context.Background(), 1)
	return id, ch
}

// Unsubscribe detaches a viewer. Safe for ids the hub already dropped.
func (r *Registry) Unsubscribe(userID, id string) {
	r.mu.Lock()
	slot, ok := r.users[userID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if slot.hub.Unsubscribe(id) {
		r.metrics.ActiveSubscribers.Add(context.Background(), -1)
	}
}

// LanguagePair returns the user's current translation direction and
// whether a session is live. Without a session the configured defaults
// are returned.
func (r *Registry) LanguagePair(userID string) (types.LanguagePair, bool) {
	r.mu.Lock()
	var w *worker
	if slot, ok := r.users[userID]; ok {
		w = slot.worker
	}
	r.mu.Unlock()
	if w != nil && !w.stopped() {
		return w.convo.GetLanguagePair(), true
	}
	s := r.defaults()
	return types.LanguagePair{From: s.SourceLanguage, To: s.TargetLanguage}, false
}

// IsActive reports whether userID has a live session.
func (r *Registry) IsActive(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.users[userID]
	return ok && slot.worker != nil && !slot.worker.stopped()
}

// ActiveUserIDs lists users with a live session, sorted for stable output.
func (r *Registry) ActiveUserIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.users))
	for id, slot := range r.users {
		if slot.worker != nil && !slot.worker.stopped() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// slot returns the per-user slot, creating it (and the user's hub) on
// first sight. Callers must hold r.mu.
func (r *Registry) slot(userID string) *userSlot {
	slot, ok := r.users[userID]
	if !ok {
		slot = &userSlot{hub: fanout.NewHub(userID, r.tuning.SubscriberBuffer)}
		r.users[userID] = slot
	}
	return slot
}

// remove clears the slot if it still points at w. A superseding open may
// already have swapped in a replacement, which then stays.
func (r *Registry) remove(w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot, ok := r.users[w.userID]; ok && slot.worker == w {
		slot.worker = nil
	}
}
