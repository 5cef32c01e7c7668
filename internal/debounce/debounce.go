// Package debounce rate-limits glasses caption writes.
//
// Interim translation events can arrive far faster than a heads-up display
// can comfortably change text. The [Debouncer] lets finals through instantly,
// lets an interim through when enough quiet time has passed, and otherwise
// coalesces rapid-fire interims into a single trailing write carrying only
// the latest text.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between interim glasses writes.
const DefaultInterval = 400 * time.Millisecond

// Disposition reports what Send did with a frame.
type Disposition int

const (
	// SentImmediate means the frame went to emit synchronously.
	SentImmediate Disposition = iota

	// SentScheduled means the frame waits on the trailing timer.
	SentScheduled

	// SentCoalesced means the frame replaced an already-pending one, which
	// is now gone for good.
	SentCoalesced

	// SendRejected means the debouncer is stopped.
	SendRejected
)

// Debouncer coalesces interim frames onto a single reschedulable timer.
// Safe for concurrent use, though in practice one session worker drives it.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	emit     func(text string, isFinal bool)

	lastSent   time.Time
	timer      *time.Timer
	pending    string
	hasPending bool
	stopped    bool
}

// New creates a Debouncer that forwards frames to emit. A zero interval
// falls back to DefaultInterval.
func New(interval time.Duration, emit func(text string, isFinal bool)) *Debouncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Debouncer{interval: interval, emit: emit}
}

// Send offers a frame for display.
//
// Finals are emitted immediately and cancel any pending interim. An interim
// is emitted immediately when the interval since the last immediate emit has
// passed; otherwise it replaces the pending frame and a trailing write fires
// once when the interval is up. Intermediate interims between two writes are
// dropped in favour of the latest.
func (d *Debouncer) Send(text string, isFinal bool) Disposition {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return SendRejected
	}

	if isFinal {
		d.cancelPendingLocked()
		d.lastSent = time.Now()
		d.emit(text, true)
		return SentImmediate
	}

	now := time.Now()
	if now.Sub(d.lastSent) >= d.interval {
		d.cancelPendingLocked()
		d.lastSent = now
		d.emit(text, false)
		return SentImmediate
	}

	replaced := d.hasPending
	d.pending = text
	d.hasPending = true
	if d.timer == nil {
		remaining := d.interval - now.Sub(d.lastSent)
		d.timer = time.AfterFunc(remaining, d.fire)
	}
	if replaced {
		return SentCoalesced
	}
	return SentScheduled
}

// fire delivers the pending interim. It intentionally does not advance
// lastSent: a trailing write settles the display, it does not open a new
// rate window, so the next live interim may go out immediately.
func (d *Debouncer) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timer = nil
	if d.stopped || !d.hasPending {
		return
	}
	text := d.pending
	d.pending, d.hasPending = "", false
	d.emit(text, false)
}

// Cancel discards any pending trailing write without emitting it. The rate
// window is unchanged. Used when display state is rebuilt and a frame
// composed from the old state must not surface.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelPendingLocked()
}

// Stop cancels any pending write and rejects all further frames. A timer
// firing concurrently with Stop is a no-op.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.cancelPendingLocked()
}

func (d *Debouncer) cancelPendingLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = ""
	d.hasPending = false
}
