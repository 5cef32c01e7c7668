// Package caption renders translation text into fixed-size display frames
// for the glasses.
//
// The glasses show a small rectangle of text: a configurable number of lines
// at a configurable column width. The [Formatter] keeps a bounded history of
// finalised captions and composes each frame from that history plus the
// current interim, so the wearer sees recent context scroll up as new speech
// arrives.
package caption

import (
	"strings"

	"github.com/lenslate/lenslate/pkg/types"
)

// DefaultMaxFinals bounds the final-caption history when no cap is given.
const DefaultMaxFinals = 100

// Config configures a Formatter.
type Config struct {
	// LineWidth selects the column budget per line.
	LineWidth types.LineWidth

	// NumberOfLines is the visible line count, clamped to [1, 5].
	NumberOfLines int

	// CJK marks a character-tokenised target script; wrapping then breaks
	// at any rune instead of preferring word boundaries.
	CJK bool

	// MaxFinals caps the final-caption history. Defaults to DefaultMaxFinals.
	MaxFinals int
}

// finalCaption keeps both the raw text (needed to replay history through a
// reconfigured formatter) and its wrapped lines (what frames are built from).
type finalCaption struct {
	raw   string
	lines []string
}

// Formatter turns caption text into display frames. It is single-owner state
// driven by the session worker and is not safe for concurrent use.
type Formatter struct {
	cols      int
	lines     int
	cjk       bool
	maxFinals int

	finals []finalCaption
}

// NewFormatter creates a Formatter for the given display shape.
func NewFormatter(cfg Config) *Formatter {
	lines := cfg.NumberOfLines
	if lines < 1 {
		lines = 1
	}
	if lines > 5 {
		lines = 5
	}
	maxFinals := cfg.MaxFinals
	if maxFinals <= 0 {
		maxFinals = DefaultMaxFinals
	}
	return &Formatter{
		cols:      cfg.LineWidth.Columns(),
		lines:     lines,
		cjk:       cfg.CJK,
		maxFinals: maxFinals,
	}
}

// ProcessString renders one caption into the next display frame.
//
// Finals are appended to the history (evicting the oldest past the cap) and
// the frame shows the most recent final lines. Interims never mutate the
// history; the frame shows history lines followed by the wrapped interim.
// In both cases the frame is at most NumberOfLines lines, oldest dropped
// off the top.
func (f *Formatter) ProcessString(text string, isFinal bool) string {
	if isFinal {
		f.finals = append(f.finals, finalCaption{raw: text, lines: wrapLines(text, f.cols, f.cjk)})
		if len(f.finals) > f.maxFinals {
			drop := len(f.finals) - f.maxFinals
			// Copy survivors to a fresh backing array so evicted captions
			// can be collected.
			f.finals = append(make([]finalCaption, 0, f.maxFinals), f.finals[drop:]...)
		}
		return f.frame(nil)
	}
	return f.frame(wrapLines(text, f.cols, f.cjk))
}

// frame composes history lines plus the given interim lines, trimmed from
// the top to the visible line budget.
func (f *Formatter) frame(interim []string) string {
	var all []string
	for _, fc := range f.finals {
		all = append(all, fc.lines...)
	}
	all = append(all, interim...)
	if len(all) > f.lines {
		all = all[len(all)-f.lines:]
	}
	return strings.Join(all, "\n")
}

// Finals returns the raw finalised captions in order, oldest first. Used to
// replay history through a reconfigured formatter so wrapping adapts to a
// new display shape.
func (f *Formatter) Finals() []string {
	out := make([]string, len(f.finals))
	for i, fc := range f.finals {
		out[i] = fc.raw
	}
	return out
}

// Clear empties the final-caption history.
func (f *Formatter) Clear() {
	f.finals = nil
}

// Len reports the current final-history size.
func (f *Formatter) Len() int {
	return len(f.finals)
}
