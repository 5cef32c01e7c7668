package debounce

import (
	"sync"
	"testing"
	"time"
)

// emitLog records every frame the debouncer lets through.
type emitLog struct {
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	text  string
	final bool
	at    time.Time
}

func (e *emitLog) emit(text string, isFinal bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frame{text: text, final: isFinal, at: time.Now()})
}

func (e *emitLog) snapshot() []frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]frame(nil), e.frames...)
}

func TestDebouncer_FinalImmediate(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)
	defer d.Stop()

	d.Send("done", true)
	d.Send("done again", true)

	frames := log.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 immediate finals", len(frames))
	}
	for _, f := range frames {
		if !f.final {
			t.Errorf("frame %q lost its final flag", f.text)
		}
	}
}

func TestDebouncer_CoalescesToLatest(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)
	defer d.Stop()

	if got := d.Send("a", false); got != SentImmediate { // nothing sent yet
		t.Errorf("first interim disposition = %v, want SentImmediate", got)
	}
	time.Sleep(10 * time.Millisecond)
	if got := d.Send("ab", false); got != SentScheduled {
		t.Errorf("second interim disposition = %v, want SentScheduled", got)
	}
	time.Sleep(10 * time.Millisecond)
	if got := d.Send("abc", false); got != SentCoalesced {
		t.Errorf("third interim disposition = %v, want SentCoalesced", got)
	}

	time.Sleep(150 * time.Millisecond)

	frames := log.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames (%v), want immediate + one trailing", len(frames), frames)
	}
	if frames[0].text != "a" {
		t.Errorf("first frame = %q, want immediate %q", frames[0].text, "a")
	}
	if frames[1].text != "abc" {
		t.Errorf("trailing frame = %q, want latest %q", frames[1].text, "abc")
	}
	gap := frames[1].at.Sub(frames[0].at)
	if gap < 80*time.Millisecond {
		t.Errorf("trailing write after %v, want at least most of the interval", gap)
	}
}

func TestDebouncer_FinalCancelsPending(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)
	defer d.Stop()

	d.Send("a", false)
	time.Sleep(10 * time.Millisecond)
	d.Send("ab", false) // pending
	d.Send("final text", true)

	time.Sleep(150 * time.Millisecond)

	frames := log.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames (%v), want pending interim cancelled", len(frames), frames)
	}
	if frames[1].text != "final text" || !frames[1].final {
		t.Errorf("second frame = %+v, want the final", frames[1])
	}
}

func TestDebouncer_QuietPeriodImmediate(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)
	defer d.Stop()

	d.Send("a", false)
	time.Sleep(130 * time.Millisecond)
	d.Send("b", false)

	frames := log.snapshot()
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want second interim immediate after quiet period", len(frames))
	}
}

func TestDebouncer_TrailingWriteDoesNotOpenRateWindow(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)
	defer d.Stop()

	d.Send("a", false) // immediate at t=0
	time.Sleep(10 * time.Millisecond)
	d.Send("ab", false) // trailing fires around t=100

	time.Sleep(120 * time.Millisecond)
	d.Send("abc", false) // t≈130, beyond the window opened at t=0

	frames := log.snapshot()
	if len(frames) != 3 {
		t.Fatalf("got %d frames (%v), want third interim immediate", len(frames), frames)
	}
	if frames[2].text != "abc" {
		t.Errorf("third frame = %q, want %q", frames[2].text, "abc")
	}
}

func TestDebouncer_StopCancelsAndRejects(t *testing.T) {
	log := &emitLog{}
	d := New(100*time.Millisecond, log.emit)

	d.Send("a", false)
	time.Sleep(10 * time.Millisecond)
	d.Send("ab", false) // pending
	d.Stop()

	time.Sleep(150 * time.Millisecond)
	if got := d.Send("after stop", true); got != SendRejected {
		t.Errorf("post-stop disposition = %v, want SendRejected", got)
	}

	frames := log.snapshot()
	if len(frames) != 1 {
		t.Fatalf("got %d frames (%v), want only the pre-stop immediate", len(frames), frames)
	}
}
