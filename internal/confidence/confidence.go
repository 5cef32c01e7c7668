// Package confidence stabilises streams of interim translation text.
//
// Live translation engines rewrite the tail of an utterance constantly while
// speech is in progress, which makes raw interims unpleasant to read on a
// heads-up display. The [Stabilizer] tracks how individual words behave
// across successive interims and extracts the confident prefix — the leading
// run of words considered unlikely to change — so the caption layer can
// render text that only ever grows until the utterance is finalised.
package confidence

import (
	"strings"
	"time"

	"github.com/lenslate/lenslate/pkg/types"
)

const (
	// DefaultThreshold is the per-word confidence below which the prefix
	// scan stops. Words at or above the threshold are considered settled.
	DefaultThreshold = 0.4

	// historyCap bounds the rolling buffer of interim snapshots.
	historyCap = 20
)

// Result is the outcome of processing one translation event.
type Result struct {
	// Stable is the text to display: the confident prefix for interims, the
	// full text for finals.
	Stable string

	// Confidence is the heuristic's overall score for the processed text,
	// in [0, 1]. It is 1 for finals and for the None heuristic.
	Confidence float64
}

// Config configures a Stabilizer.
type Config struct {
	// Heuristic selects the scoring algorithm. Defaults to WordStability.
	Heuristic types.Heuristic

	// Threshold is the per-word cutoff for the prefix scan.
	// Defaults to DefaultThreshold.
	Threshold float64

	// CharacterTokenized marks scripts written without word-separating
	// spaces; text is then tokenised per rune and re-joined without spaces.
	CharacterTokenized bool

	// Now is the clock used for word ageing and decay. Defaults to time.Now.
	Now func() time.Time
}

// Stabilizer converts a stream of interim texts into a non-shrinking
// confident prefix. It is not safe for concurrent use; each session owns
// one instance and drives it from a single goroutine.
type Stabilizer struct {
	heuristic types.Heuristic
	threshold float64
	cjk       bool
	now       func() time.Time

	tracker *tracker
	history [][]string

	// lastShown is the prefix most recently emitted for this utterance.
	// A scan that would expose fewer tokens re-emits it unchanged, so the
	// caption never appears to retract words.
	lastShown     []string
	lastShownText string
}

// New creates a Stabilizer with the given configuration.
func New(cfg Config) *Stabilizer {
	h := cfg.Heuristic
	if !h.IsValid() {
		h = types.HeuristicWordStability
	}
	th := cfg.Threshold
	if th <= 0 || th > 1 {
		th = DefaultThreshold
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Stabilizer{
		heuristic: h,
		threshold: th,
		cjk:       cfg.CharacterTokenized,
		now:       now,
		tracker:   newTracker(),
	}
}

// Process ingests one translation text and returns what should be displayed.
//
// Finals reset all utterance state and pass through verbatim. Interims update
// the word tracker, are scored by the configured heuristic, and yield the
// longest prefix of words whose individual confidence meets the threshold,
// never shorter than what an earlier interim of this utterance exposed.
func (s *Stabilizer) Process(text string, isFinal bool) Result {
	if s.heuristic == types.HeuristicNone {
		if isFinal {
			s.Reset()
		}
		return Result{Stable: text, Confidence: 1}
	}
	if isFinal {
		s.Reset()
		return Result{Stable: text, Confidence: 1}
	}

	tokens := tokenize(text, s.cjk)
	if len(tokens) == 0 {
		return Result{Stable: "", Confidence: 0}
	}

	now := s.now()
	s.tracker.observe(tokens, now)
	score := s.score(tokens)

	keep := 0
	for i := range tokens {
		if s.tracker.confidence(tokens[i], i) < s.threshold {
			break
		}
		keep++
	}

	if keep < len(s.lastShown) {
		// Shrinking scan: keep showing the previous prefix verbatim.
		s.snapshot(tokens)
		return Result{Stable: s.lastShownText, Confidence: score}
	}
	s.lastShown = tokens[:keep]
	s.lastShownText = s.join(s.lastShown)
	s.snapshot(tokens)
	return Result{Stable: s.lastShownText, Confidence: score}
}

// Reset clears all utterance state. Called on finals, language changes and
// session teardown.
func (s *Stabilizer) Reset() {
	s.tracker = newTracker()
	s.history = nil
	s.lastShown = nil
	s.lastShownText = ""
}

// score computes the selected heuristic's overall confidence for the text.
func (s *Stabilizer) score(tokens []string) float64 {
	switch s.heuristic {
	case types.HeuristicPrefixRetention:
		return retentionScore(tokens, s.prev())
	case types.HeuristicEditDistance:
		return editScore(tokens, s.prev())
	case types.HeuristicWordDuration:
		return s.tracker.durationScore(tokens)
	case types.HeuristicTrailingWordDecay:
		return trailingScore(len(tokens))
	case types.HeuristicHybrid:
		blend := 0.4*s.meanStability(tokens) +
			0.3*retentionScore(tokens, s.prev()) +
			0.2*editScore(tokens, s.prev()) +
			0.1*trailingScore(len(tokens))
		return clamp01(blend)
	default:
		return s.meanStability(tokens)
	}
}

func (s *Stabilizer) meanStability(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	sum := 0.0
	for i, tok := range tokens {
		sum += s.tracker.confidence(tok, i)
	}
	return sum / float64(len(tokens))
}

// prev returns the tokens of the previous interim, or nil at the start of an
// utterance.
func (s *Stabilizer) prev() []string {
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

func (s *Stabilizer) snapshot(tokens []string) {
	s.history = append(s.history, tokens)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
}

// join renders a token slice back to display text. Character-tokenised
// scripts are joined without separators.
func (s *Stabilizer) join(tokens []string) string {
	if s.cjk {
		return strings.Join(tokens, "")
	}
	return strings.Join(tokens, " ")
}

// trailingScore is the mean positional weight (i+1)/n across the interim, a
// fixed property of its length: longer interims carry more settled mass.
func trailingScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n+1) / float64(2*n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
