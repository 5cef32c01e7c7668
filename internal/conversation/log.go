// Package conversation maintains the per-user log of translation entries.
//
// The log distinguishes "the same utterance being refined" from "a new
// utterance": successive interims update one entry in place, and the final
// for that utterance promotes the same entry rather than appending a
// duplicate. Entries keep a stable ID across this lifecycle so viewers can
// update rows instead of re-rendering.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/lenslate/lenslate/pkg/types"
)

// DefaultMaxEntries bounds the log when no cap is configured.
const DefaultMaxEntries = 500

// Config configures a Log.
type Config struct {
	// MaxEntries caps the log size; the oldest entry is evicted first.
	// Defaults to DefaultMaxEntries.
	MaxEntries int

	// Now is the timestamp source. Defaults to time.Now.
	Now func() time.Time
}

// Log is an insertion-ordered, bounded collection of conversation entries.
// All methods are safe for concurrent use; mutation happens only on the
// session worker, while HTTP handlers read snapshots.
type Log struct {
	mu sync.RWMutex

	entries map[string]*types.ConversationEntry
	order   []string

	// currentInterimID names the entry the in-flight utterance refines,
	// empty when the last utterance was finalised.
	currentInterimID string

	// counter is strictly increasing for the lifetime of the session; it is
	// deliberately not reset by Clear so entry IDs stay unique for viewers
	// that subscribed before the clear.
	counter uint64

	pair types.LanguagePair

	maxEntries int
	now        func() time.Time
}

// NewLog creates an empty Log.
func NewLog(cfg Config) *Log {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Log{
		entries:    make(map[string]*types.ConversationEntry),
		order:      make([]string, 0, 16),
		maxEntries: maxEntries,
		now:        now,
	}
}

// AddTranslation folds one translation event into the log and returns the
// created or updated entry. ok is false when there was nothing to record.
//
// An interim while an utterance is open updates that utterance's entry; a
// final while an utterance is open promotes it (isFinal true, isNewUtterance
// true) and closes it; anything else opens a new entry.
func (l *Log) AddTranslation(originalText, translatedText, originalLang, translatedLang string, isFinal bool) (types.ConversationEntry, bool) {
	if originalText == "" && translatedText == "" {
		return types.ConversationEntry{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()

	if l.currentInterimID != "" {
		if e := l.entries[l.currentInterimID]; e != nil {
			e.OriginalText = originalText
			e.TranslatedText = translatedText
			e.Timestamp = nowMs
			if isFinal {
				e.IsFinal = true
				e.IsNewUtterance = true
				l.currentInterimID = ""
			}
			return *e, true
		}
		// The tracked entry was evicted; fall through to create a new one.
		l.currentInterimID = ""
	}

	l.counter++
	e := &types.ConversationEntry{
		ID:                 fmt.Sprintf("entry-%d", l.counter),
		Timestamp:          nowMs,
		OriginalText:       originalText,
		TranslatedText:     translatedText,
		OriginalLanguage:   originalLang,
		TranslatedLanguage: translatedLang,
		IsFinal:            isFinal,
		IsNewUtterance:     isFinal,
	}
	l.entries[e.ID] = e
	l.order = append(l.order, e.ID)
	if !isFinal {
		l.currentInterimID = e.ID
	}

	for len(l.order) > l.maxEntries {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.entries, oldest)
		if l.currentInterimID == oldest {
			l.currentInterimID = ""
		}
	}

	return *e, true
}

// GetAllEntries returns a copy of every entry in insertion order.
func (l *Log) GetAllEntries() []types.ConversationEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.ConversationEntry, 0, len(l.order))
	for _, id := range l.order {
		if e := l.entries[id]; e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// Clear removes every entry and forgets the open utterance. The entry
// counter is preserved.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]*types.ConversationEntry)
	l.order = l.order[:0]
	l.currentInterimID = ""
}

// Len reports the current entry count.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// SetLanguagePair records the active translation direction.
func (l *Log) SetLanguagePair(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pair = types.LanguagePair{From: from, To: to}
}

// GetLanguagePair returns the active translation direction.
func (l *Log) GetLanguagePair() types.LanguagePair {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pair
}
