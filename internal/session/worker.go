package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/lenslate/lenslate/internal/caption"
	"github.com/lenslate/lenslate/internal/confidence"
	"github.com/lenslate/lenslate/internal/config"
	"github.com/lenslate/lenslate/internal/conversation"
	"github.com/lenslate/lenslate/internal/debounce"
	"github.com/lenslate/lenslate/internal/fanout"
	"github.com/lenslate/lenslate/internal/observe"
	"github.com/lenslate/lenslate/internal/translit"
	"github.com/lenslate/lenslate/pkg/relaycloud"
	"github.com/lenslate/lenslate/pkg/types"
)

const (
	// finalHoldMs keeps a finalised caption on screen long enough to read
	// when no further frames arrive.
	finalHoldMs = 20_000

	// warningHoldMs keeps the unsupported-combination warning visible.
	warningHoldMs = 10_000

	// inboxSize bounds the worker inbox. A full inbox pushes back on the
	// stream pump, which in turn slows the upstream reader.
	inboxSize = 64
)

// Direction attribute values for translation-event metrics.
const (
	directionToUser   = "to_user"
	directionFromUser = "from_user"
)

// ── Inbox messages ────────────────────────────────────────────────────────────

type msgKind int

const (
	msgEvent msgKind = iota
	msgStreamClosed
	msgInactivity
	msgStop
)

type message struct {
	kind  msgKind
	event types.StreamEvent // msgEvent
	gen   int               // msgInactivity
}

// subscribeRequest asks the run loop to register a viewer at a point where
// the conversation snapshot and the live event stream are consistent.
type subscribeRequest struct {
	reply chan subscription
}

type subscription struct {
	id string
	ch <-chan fanout.Event
}

// ── Worker ────────────────────────────────────────────────────────────────────

// worker owns all mutable state of one user's session and serialises every
// input that can touch it: upstream events, settings pushes, the inactivity
// timer, viewer attachment and stop requests all funnel into one goroutine.
type worker struct {
	userID      string
	sessionID   string
	deviceModel string

	stream  relaycloud.Stream
	hub     *fanout.Hub
	convo   *conversation.Log
	policy  *config.Policy
	tuning  config.Tuning
	metrics *observe.Metrics
	log     *slog.Logger
	onStop  func(*worker)

	// State below is owned by the run goroutine.
	settings     types.UserSettings
	sourceLocale string
	targetLocale string
	pinyin       bool
	blocked      bool
	stab         *confidence.Stabilizer
	format       *caption.Formatter
	deb          *debounce.Debouncer

	inactivityGen   int
	inactivityTimer *time.Timer

	inbox chan message
	subCh chan *subscribeRequest
	done  chan struct{}
}

type workerConfig struct {
	userID      string
	sessionID   string
	deviceModel string
	stream      relaycloud.Stream
	hub         *fanout.Hub
	convo       *conversation.Log
	settings    types.UserSettings
	policy      *config.Policy
	tuning      config.Tuning
	metrics     *observe.Metrics
	log         *slog.Logger
	onStop      func(*worker)
}

func newWorker(cfg workerConfig) *worker {
	w := &worker{
		userID:      cfg.userID,
		sessionID:   cfg.sessionID,
		deviceModel: cfg.deviceModel,
		stream:      cfg.stream,
		hub:         cfg.hub,
		convo:       cfg.convo,
		policy:      cfg.policy,
		tuning:      cfg.tuning,
		metrics:     cfg.metrics,
		log:         cfg.log.With("user_id", cfg.userID, "session_id", cfg.sessionID),
		onStop:      cfg.onStop,
		settings:    cfg.settings,
		inbox:       make(chan message, inboxSize),
		subCh:       make(chan *subscribeRequest),
		done:        make(chan struct{}),
	}
	w.applyLocales()
	w.stab = w.newStabilizer()
	w.format = w.newFormatter(nil)
	w.deb = debounce.New(w.tuning.DebounceInterval, w.emitFrame)
	return w
}

func (w *worker) start() {
	go w.pump()
	go w.run()
}

// stop requests teardown and waits for the run loop to finish.
func (w *worker) stop() {
	w.post(message{kind: msgStop})
	<-w.done
}

// stopped reports whether the run loop has finished.
func (w *worker) stopped() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// post delivers a message unless the worker has finished.
func (w *worker) post(m message) bool {
	select {
	case w.inbox <- m:
		return true
	case <-w.done:
		return false
	}
}

// pump forwards stream events into the inbox so the run loop has a single
// ordered input. Stream closure becomes a final stream-closed message.
func (w *worker) pump() {
	for ev := range w.stream.Events() {
		if !w.post(message{kind: msgEvent, event: ev}) {
			return
		}
	}
	w.post(message{kind: msgStreamClosed})
}

func (w *worker) run() {
	for {
		select {
		case m := <-w.inbox:
			switch m.kind {
			case msgEvent:
				w.handleEvent(m.event)
			case msgInactivity:
				w.handleInactivity(m.gen)
			case msgStreamClosed:
				w.noteStreamEnd()
				w.teardown()
				return
			case msgStop:
				w.teardown()
				return
			}
		case req := <-w.subCh:
			req.reply <- w.attach()
		}
	}
}

// teardown releases session resources. Viewer subscriptions survive: the
// hub belongs to the user, not the session, and an idle viewer keeps its
// connection for whatever session opens next under the same user id.
func (w *worker) teardown() {
	w.deb.Stop()
	w.cancelInactivity()
	w.stream.Close()
	w.metrics.ActiveSessions.Add(context.Background(), -1)
	close(w.done)
	w.drain()
	w.onStop(w)
	w.log.Info("session stopped")
}

// drain serves whatever raced into the channels after the loop stopped.
// Attachment goes straight to the hub: the worker no longer broadcasts, so
// a plain snapshot cannot miss or duplicate events.
func (w *worker) drain() {
	for {
		select {
		case <-w.inbox:
		case req := <-w.subCh:
			req.reply <- w.attach()
		default:
			return
		}
	}
}

// attach registers a viewer with a replay of the conversation so far. On
// the run goroutine the snapshot is atomic with respect to broadcasts.
func (w *worker) attach() subscription {
	id, ch := w.hub.Subscribe(replayEvents(w.convo))
	return subscription{id: id, ch: ch}
}

// replayEvents converts the conversation history into the event replay a
// new viewer receives before live traffic.
func replayEvents(convo *conversation.Log) []fanout.Event {
	entries := convo.GetAllEntries()
	if len(entries) == 0 {
		return nil
	}
	evs := make([]fanout.Event, len(entries))
	for i, e := range entries {
		evs[i] = fanout.Event{Type: fanout.EventTranslation, Data: e}
	}
	return evs
}

func (w *worker) handleEvent(ev types.StreamEvent) {
	switch ev.Kind {
	case types.StreamTranslation:
		w.handleTranslation(ev.Translation)
	case types.StreamSettings:
		w.handleSettings(ev.Settings)
	}
}

// ── Translation events ────────────────────────────────────────────────────────

func (w *worker) handleTranslation(ev types.TranslationEvent) {
	ctx := context.Background()
	w.resetInactivity()

	// Classify the direction. Events translated into the wearer's language
	// are shown in every mode; untranslated passthrough only in
	// "everything" mode; the reverse direction feeds the conversation log
	// but never the glasses.
	show := false
	direction := directionToUser
	glassesText := ""
	switch {
	case !ev.DidTranslate:
		glassesText = ev.TranslatedText
		show = w.settings.DisplayMode == types.DisplayEverything
	case types.SameLanguage(ev.TargetLocale, w.targetLocale):
		glassesText = ev.TranslatedText
		show = true
	default:
		direction = directionFromUser
	}

	if show {
		if w.pinyin {
			glassesText = translit.ToPinyin(glassesText)
		}
		var frame string
		if ev.IsFinal {
			frame = w.format.ProcessString(glassesText, true)
		} else {
			res := w.stab.Process(glassesText, false)
			w.metrics.RecordConfidence(ctx, string(w.settings.ConfidenceHeuristic), res.Confidence)
			frame = w.format.ProcessString(res.Stable, false)
		}
		if w.deb.Send(frame, ev.IsFinal) == debounce.SentCoalesced {
			w.metrics.CoalescedFrames.Add(ctx, 1)
		}
	}

	// Only genuine translations reach the log; same-language passthrough
	// is display-only.
	if ev.DidTranslate {
		entry, ok := w.convo.AddTranslation(
			ev.OriginalText,
			ev.TranslatedText,
			types.LanguageName(ev.SourceLocale),
			types.LanguageName(ev.TargetLocale),
			ev.IsFinal,
		)
		if ok {
			w.broadcast(fanout.Event{Type: fanout.EventTranslation, Data: entry})
		}
	}

	// A final ends the utterance in either direction; interim tracking
	// starts fresh.
	if ev.IsFinal {
		w.stab.Reset()
	}
	w.metrics.RecordTranslationEvent(ctx, ev.IsFinal, direction)
}

// ── Settings events ───────────────────────────────────────────────────────────

func (w *worker) handleSettings(values []types.SettingValue) {
	next := config.ApplySettings(w.settings, values)
	diff := config.DiffSettings(w.settings, next)
	if !diff.Any() {
		return
	}
	w.settings = next
	w.applyLocales()

	if diff.LanguageChanged() {
		w.changeLanguage()
		return
	}
	if diff.HeuristicChanged {
		w.stab = w.newStabilizer()
	}
	if diff.LayoutChanged {
		w.reshapeDisplay()
	}
	// A display-mode change needs no rebuild: the gate is evaluated per
	// event, and both caption history and conversation stay intact.
}

// changeLanguage tears down per-direction display state and redirects the
// upstream subscription. The conversation log survives, so viewers keep
// their history and see a languageChange marker instead of a reset.
func (w *worker) changeLanguage() {
	w.deb.Cancel()
	w.stab = w.newStabilizer()
	w.format = w.newFormatter(nil)
	w.convo.SetLanguagePair(w.settings.SourceLanguage, w.settings.TargetLanguage)

	pair := w.convo.GetLanguagePair()
	w.broadcast(fanout.Event{Type: fanout.EventLanguageChange, Data: pair})

	reason, blocked := w.policy.Check(w.deviceModel, w.settings.TargetLanguage)
	wasBlocked := w.blocked
	w.blocked = blocked
	if blocked {
		w.warnUnsupported(reason)
		if !wasBlocked {
			if err := w.stream.UpdateSubscription("", ""); err != nil {
				w.noteStreamWrite(err)
			}
		}
	} else {
		if err := w.stream.UpdateSubscription(w.sourceLocale, w.targetLocale); err != nil {
			w.noteStreamWrite(err)
		}
	}
	w.log.Info("language pair changed",
		"from", pair.From,
		"to", pair.To,
		"blocked", blocked,
	)
}

// reshapeDisplay rebuilds the formatter for a new width or line budget,
// replaying the raw caption history so nothing already finalised is lost.
func (w *worker) reshapeDisplay() {
	w.format = w.newFormatter(w.format.Finals())
}

// warnUnsupported puts the explanatory caption on the glasses, bypassing
// the debouncer so its hold duration survives until the wearer changes
// language.
func (w *worker) warnUnsupported(reason string) {
	if err := w.stream.ShowTextWall(reason, types.DisplayOptions{DurationMs: warningHoldMs}); err != nil {
		w.noteStreamWrite(err)
		return
	}
	w.metrics.RecordGlassesFrame(context.Background(), "final")
}

// ── Inactivity ────────────────────────────────────────────────────────────────

// handleInactivity clears the display and the conversation after a quiet
// period. Viewers stay connected and receive a clear marker; the entry id
// counter keeps counting so ids never repeat within the session.
func (w *worker) handleInactivity(gen int) {
	if gen != w.inactivityGen {
		return
	}
	w.inactivityTimer = nil
	w.format.Clear()
	w.convo.Clear()
	w.broadcast(fanout.Event{Type: fanout.EventClear, Data: struct{}{}})
	w.deb.Send("", true)
	w.log.Info("inactivity clear", "timeout", w.tuning.InactivityTimeout)
}

// resetInactivity restarts the quiet-period countdown. Fires carry a
// generation number so one that raced a reset is ignored.
func (w *worker) resetInactivity() {
	w.inactivityGen++
	gen := w.inactivityGen
	if w.inactivityTimer != nil {
		w.inactivityTimer.Stop()
	}
	w.inactivityTimer = time.AfterFunc(w.tuning.InactivityTimeout, func() {
		w.post(message{kind: msgInactivity, gen: gen})
	})
}

func (w *worker) cancelInactivity() {
	w.inactivityGen++
	if w.inactivityTimer != nil {
		w.inactivityTimer.Stop()
		w.inactivityTimer = nil
	}
}

// ── Output paths ──────────────────────────────────────────────────────────────

// emitFrame writes one debounced frame to the glasses. It runs on the
// worker goroutine for immediate sends and on the debouncer's timer
// goroutine for trailing ones, so it only touches thread-safe state.
func (w *worker) emitFrame(text string, isFinal bool) {
	kind := "interim"
	var opts types.DisplayOptions
	switch {
	case text == "":
		kind = "clear"
	case isFinal:
		kind = "final"
		opts.DurationMs = finalHoldMs
	}
	if err := w.stream.ShowTextWall(text, opts); err != nil {
		w.noteStreamWrite(err)
		return
	}
	w.metrics.RecordGlassesFrame(context.Background(), kind)
}

// broadcast pushes an event to the hub and accounts for any viewers
// dropped for not draining their queue.
func (w *worker) broadcast(ev fanout.Event) {
	dropped := w.hub.Broadcast(ev)
	w.metrics.RecordFanoutEvent(context.Background(), string(ev.Type), dropped)
	if dropped > 0 {
		w.log.Warn("dropped slow viewers",
			"count", dropped,
			"event_type", string(ev.Type),
		)
	}
}

// noteStreamWrite logs a failed glasses write. Expected once during
// teardown; a live stream failing surfaces through Events closing, which
// stops the session anyway.
func (w *worker) noteStreamWrite(err error) {
	w.log.Debug("glasses write dropped", "error", err)
}

// noteStreamEnd logs why the upstream ended. A nil Err is a deliberate
// close from either side and needs no noise.
func (w *worker) noteStreamEnd() {
	if err := w.stream.Err(); err != nil {
		w.metrics.RecordUpstreamError(context.Background(), "closed")
		w.log.Warn("upstream stream lost, stopping session", "error", err)
	}
}

// ── Derived settings ──────────────────────────────────────────────────────────

// applyLocales recomputes the locale view of the current settings. Unknown
// languages fall back to the default locale rather than failing the
// session.
func (w *worker) applyLocales() {
	src, ok := types.LocaleFor(w.settings.SourceLanguage)
	if !ok {
		w.log.Warn("unknown source language, using default locale",
			"language", w.settings.SourceLanguage)
	}
	tgt, ok := types.LocaleFor(w.settings.TargetLanguage)
	if !ok {
		w.log.Warn("unknown target language, using default locale",
			"language", w.settings.TargetLanguage)
	}
	w.sourceLocale = src
	w.targetLocale = tgt
	w.pinyin = types.IsPinyin(w.settings.TargetLanguage)
}

// displayCJK reports whether glasses text is written without word spaces.
// Pinyin renders Chinese in spaced Latin, so it wraps like any western
// script.
func (w *worker) displayCJK() bool {
	return types.IsCharacterTokenized(w.targetLocale) && !w.pinyin
}

func (w *worker) newStabilizer() *confidence.Stabilizer {
	return confidence.New(confidence.Config{
		Heuristic:          w.settings.ConfidenceHeuristic,
		Threshold:          w.tuning.ConfidenceThreshold,
		CharacterTokenized: w.displayCJK(),
	})
}

func (w *worker) newFormatter(history []string) *caption.Formatter {
	f := caption.NewFormatter(caption.Config{
		LineWidth:     w.settings.LineWidth,
		NumberOfLines: w.settings.NumberOfLines,
		CJK:           w.displayCJK(),
		MaxFinals:     w.tuning.MaxFinalCaptions,
	})
	for _, raw := range history {
		f.ProcessString(raw, true)
	}
	return f
}
