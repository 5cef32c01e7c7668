package conversation

import (
	"fmt"
	"testing"
	"time"
)

func TestLog_UtterancePromotion(t *testing.T) {
	l := NewLog(Config{})

	a, ok := l.AddTranslation("hola", "hello", "Spanish", "English", false)
	if !ok {
		t.Fatal("AddTranslation returned not ok")
	}
	if a.ID != "entry-1" || a.IsFinal || a.IsNewUtterance {
		t.Fatalf("interim entry = %+v, want open entry-1", a)
	}

	b, _ := l.AddTranslation("hola que", "hello what", "Spanish", "English", false)
	if b.ID != a.ID {
		t.Errorf("second interim id = %s, want same id %s", b.ID, a.ID)
	}
	if b.TranslatedText != "hello what" {
		t.Errorf("interim update text = %q, want refreshed", b.TranslatedText)
	}

	c, _ := l.AddTranslation("hola que tal", "hello how are you", "Spanish", "English", true)
	if c.ID != a.ID {
		t.Errorf("final id = %s, want promoted same id %s", c.ID, a.ID)
	}
	if !c.IsFinal || !c.IsNewUtterance {
		t.Errorf("promoted entry = %+v, want isFinal and isNewUtterance", c)
	}

	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1 entry for the whole utterance", l.Len())
	}

	// The next interim opens a fresh utterance.
	d, _ := l.AddTranslation("y tu", "and you", "Spanish", "English", false)
	if d.ID != "entry-2" {
		t.Errorf("next utterance id = %s, want entry-2", d.ID)
	}
}

func TestLog_FinalWithoutInterim(t *testing.T) {
	l := NewLog(Config{})

	e, _ := l.AddTranslation("bonjour", "hello", "French", "English", true)
	if !e.IsFinal || !e.IsNewUtterance {
		t.Errorf("entry = %+v, want final new utterance", e)
	}

	// Nothing is left open afterwards.
	next, _ := l.AddTranslation("encore", "again", "French", "English", true)
	if next.ID == e.ID {
		t.Error("second final reused the previous id")
	}
}

func TestLog_EvictionFIFO(t *testing.T) {
	l := NewLog(Config{MaxEntries: 3})

	for i := 1; i <= 5; i++ {
		l.AddTranslation(fmt.Sprintf("orig %d", i), fmt.Sprintf("trans %d", i), "Spanish", "English", true)
	}

	entries := l.GetAllEntries()
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	for i, wantID := range []string{"entry-3", "entry-4", "entry-5"} {
		if entries[i].ID != wantID {
			t.Errorf("entries[%d].ID = %s, want %s", i, entries[i].ID, wantID)
		}
	}
}

func TestLog_ClearPreservesCounter(t *testing.T) {
	l := NewLog(Config{})

	l.AddTranslation("uno", "one", "Spanish", "English", true)
	l.Clear()

	if l.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", l.Len())
	}

	e, _ := l.AddTranslation("dos", "two", "Spanish", "English", true)
	if e.ID != "entry-2" {
		t.Errorf("id after clear = %s, want entry-2 (counter survives)", e.ID)
	}
}

func TestLog_EmptyTextsIgnored(t *testing.T) {
	l := NewLog(Config{})

	if _, ok := l.AddTranslation("", "", "Spanish", "English", false); ok {
		t.Error("AddTranslation with empty texts reported ok")
	}
	if l.Len() != 0 {
		t.Errorf("Len() = %d, want 0", l.Len())
	}
}

func TestLog_Timestamps(t *testing.T) {
	current := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l := NewLog(Config{Now: func() time.Time { return current }})

	first, _ := l.AddTranslation("hola", "hello", "Spanish", "English", false)
	current = current.Add(2 * time.Second)
	updated, _ := l.AddTranslation("hola amigo", "hello friend", "Spanish", "English", false)

	if updated.Timestamp-first.Timestamp != 2000 {
		t.Errorf("timestamp delta = %d ms, want 2000", updated.Timestamp-first.Timestamp)
	}
}

func TestLog_LanguagePair(t *testing.T) {
	l := NewLog(Config{})

	l.SetLanguagePair("Spanish", "English")
	pair := l.GetLanguagePair()
	if pair.From != "Spanish" || pair.To != "English" {
		t.Errorf("pair = %+v, want Spanish -> English", pair)
	}
}

func TestLog_GetAllEntriesReturnsCopies(t *testing.T) {
	l := NewLog(Config{})

	l.AddTranslation("hola", "hello", "Spanish", "English", false)
	snapshot := l.GetAllEntries()
	snapshot[0].TranslatedText = "mutated"

	if got := l.GetAllEntries()[0].TranslatedText; got != "hello" {
		t.Errorf("stored text = %q, want snapshot isolation", got)
	}
}
