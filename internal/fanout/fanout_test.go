package fanout

import (
	"testing"
	"time"

	"github.com/lenslate/lenslate/pkg/types"
)

func collect(ch <-chan Event, n int, t *testing.T) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(out), n)
			}
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events, want %d", len(out), n)
		}
	}
	return out
}

func TestHub_ConnectedThenReplayThenLive(t *testing.T) {
	h := NewHub("user-1", 8)

	replay := []Event{
		{Type: EventTranslation, Data: types.ConversationEntry{ID: "entry-1"}},
		{Type: EventTranslation, Data: types.ConversationEntry{ID: "entry-2"}},
	}
	_, ch := h.Subscribe(replay)
	h.Broadcast(Event{Type: EventTranslation, Data: types.ConversationEntry{ID: "entry-3"}})

	events := collect(ch, 4, t)
	if events[0].Type != EventConnected {
		t.Errorf("first event = %s, want connected", events[0].Type)
	}
	payload, ok := events[0].Data.(ConnectedPayload)
	if !ok || payload.UserID != "user-1" {
		t.Errorf("connected payload = %+v, want user-1", events[0].Data)
	}
	for i, wantID := range []string{"entry-1", "entry-2", "entry-3"} {
		entry := events[i+1].Data.(types.ConversationEntry)
		if entry.ID != wantID {
			t.Errorf("event %d entry = %s, want %s", i+1, entry.ID, wantID)
		}
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	h := NewHub("user-1", 2)

	_, ch := h.Subscribe(nil)
	// connected occupies replay headroom; the live budget is 2.
	dropped := 0
	for range 5 {
		dropped += h.Broadcast(Event{Type: EventClear, Data: struct{}{}})
	}

	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want slow subscriber removed", h.Count())
	}

	// Drain: connected + buffered events, then closed.
	open := true
	received := 0
	for open {
		select {
		case _, ok := <-ch:
			if !ok {
				open = false
				break
			}
			received++
		case <-time.After(time.Second):
			t.Fatal("channel never closed for dropped subscriber")
		}
	}
	if received == 0 {
		t.Error("dropped subscriber received nothing, want buffered events before close")
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub("user-1", 4)

	id, ch := h.Subscribe(nil)
	h.Unsubscribe(id)
	h.Unsubscribe(id) // unknown id is fine

	collect(ch, 1, t) // connected was pre-loaded
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("received event after unsubscribe, want closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Broadcasting with no subscribers must not panic.
	h.Broadcast(Event{Type: EventClear, Data: struct{}{}})
}

func TestHub_IndependentSubscribers(t *testing.T) {
	h := NewHub("user-1", 4)

	_, a := h.Subscribe(nil)
	_, b := h.Subscribe(nil)
	h.Broadcast(Event{Type: EventLanguageChange, Data: types.LanguagePair{From: "English", To: "French"}})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		events := collect(ch, 2, t)
		if events[1].Type != EventLanguageChange {
			t.Errorf("subscriber %s event = %s, want languageChange", name, events[1].Type)
		}
	}
	if h.Count() != 2 {
		t.Errorf("Count() = %d, want 2", h.Count())
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub("user-1", 4)

	_, ch := h.Subscribe(nil)
	h.Close()

	collect(ch, 1, t) // pre-loaded connected
	if _, ok := <-ch; ok {
		t.Error("channel still open after Close")
	}
	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
}
