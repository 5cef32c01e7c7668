// Package fanout broadcasts typed session events to viewer subscribers.
//
// Each user has one [Hub]. Viewers subscribe and receive a synthetic
// connected event, a replay of the conversation so far, and then live
// events in hub order. Every subscriber owns a bounded queue; a subscriber
// that stops draining is dropped rather than allowed to stall the session
// worker or its peers.
package fanout

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber live-event queue capacity.
const DefaultBuffer = 64

// EventType names the event kinds delivered to viewers.
type EventType string

const (
	// EventConnected is sent once, synthetically, when a subscriber joins.
	EventConnected EventType = "connected"

	// EventTranslation carries a created or updated conversation entry.
	EventTranslation EventType = "translation"

	// EventLanguageChange announces a new translation direction.
	EventLanguageChange EventType = "languageChange"

	// EventClear tells viewers to drop their rendered conversation.
	EventClear EventType = "clear"
)

// Event is one typed message to viewers. Data is marshalled to JSON at the
// transport boundary.
type Event struct {
	Type EventType
	Data any
}

// ConnectedPayload is the body of the synthetic connected event.
type ConnectedPayload struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Hub is a per-user broadcast channel with replay-on-join. All methods are
// safe for concurrent use. The Hub outlives individual sessions so viewers
// can stay attached across session restarts.
type Hub struct {
	userID string
	buffer int

	mu   sync.Mutex
	subs map[string]chan Event
}

// NewHub creates a Hub for one user. buffer caps each subscriber's live
// queue; zero selects DefaultBuffer.
func NewHub(userID string, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		userID: userID,
		buffer: buffer,
		subs:   make(map[string]chan Event),
	}
}

// Subscribe registers a new viewer and returns its id and receive channel.
// The channel is pre-loaded with the connected event and the given replay
// entries, in order, before any live event can be observed. The channel is
// closed when the subscriber is removed.
func (h *Hub) Subscribe(replay []Event) (string, <-chan Event) {
	id := uuid.NewString()
	// Sized so the connected event and the full replay always fit without
	// touching the live budget.
	ch := make(chan Event, len(replay)+1+h.buffer)
	ch <- Event{Type: EventConnected, Data: ConnectedPayload{
		UserID:    h.userID,
		Timestamp: time.Now().UnixMilli(),
	}}
	for _, ev := range replay {
		ch <- ev
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a viewer and closes its channel. Unknown ids are
// ignored, so disconnect paths may call it unconditionally; the return value
// reports whether the id was still subscribed (a slow viewer may already
// have been dropped by a broadcast).
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	return ok
}

// Broadcast delivers an event to every subscriber and reports how many were
// dropped for a full queue. A dropped subscriber is removed and its channel
// closed; the broadcast never blocks.
func (h *Hub) Broadcast(ev Event) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			delete(h.subs, id)
			close(ch)
			dropped++
		}
	}
	return dropped
}

// Count reports the current subscriber count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes every subscriber. Used on process shutdown; sessions coming
// and going do not close the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
