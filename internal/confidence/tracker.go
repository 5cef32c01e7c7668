package confidence

import (
	"math"
	"time"
)

const (
	// initialStability is the stability credit a new word starts with,
	// chosen so a first sighting scores 0.2 on the confidence ramp.
	initialStability = 0.6

	// sightingIncrement is the credit added each time a word is matched in a
	// later interim. A word in a steady position crosses the default
	// threshold on its fourth sighting.
	sightingIncrement = 0.25

	// stabilityRamp divides accumulated stability into a [0, 1] confidence.
	stabilityRamp = 3

	// similarityFloor is the minimum word similarity for an incoming token
	// to be matched against a tracked word. Below it the token is treated
	// as a new word even if the position lines up.
	similarityFloor = 0.8

	// positionHistoryCap bounds the recorded positions per word.
	positionHistoryCap = 5

	// decayGrace is how long a word may be absent from interims before its
	// stability starts to decay.
	decayGrace = 2 * time.Second

	// decayWindow is the absence span over which the decay multiplier falls
	// to its minimum of 0.1.
	decayWindow = 5 * time.Second

	// evictBelow drops a decayed word from the tracker entirely.
	evictBelow = 0.5

	// durationFull is the visible age at which a word contributes full
	// duration confidence.
	durationFull = time.Second
)

// wordDetail accumulates how one distinct word has behaved across the
// interims of the current utterance.
type wordDetail struct {
	word         string
	normalized   string
	stableCount  float64
	firstSeen    time.Time
	lastSeen     time.Time
	bestPosition int
	positions    []int
}

// tracker maintains the word-detail buffer for the utterance in progress.
// Incoming tokens are matched against tracked words fuzzily, so minor
// recognition flicker ("quik" -> "quick") accrues stability instead of
// restarting it.
type tracker struct {
	details []*wordDetail
}

func newTracker() *tracker {
	return &tracker{}
}

// observe folds one interim's tokens into the buffer: matched words gain
// stability and record their position, unmatched tokens open a new detail,
// and words absent past the grace period decay until evicted.
func (t *tracker) observe(tokens []string, now time.Time) {
	seen := make(map[*wordDetail]bool, len(tokens))
	for i, tok := range tokens {
		norm := normalizeToken(tok)
		if norm == "" {
			continue
		}
		d := t.bestMatch(norm, i)
		if d == nil {
			d = &wordDetail{
				word:       tok,
				normalized: norm,
				firstSeen:  now,

				stableCount: initialStability,
			}
			t.details = append(t.details, d)
		} else {
			d.stableCount += sightingIncrement
			// Adopt the latest spelling so future sightings match exactly.
			d.word, d.normalized = tok, norm
		}
		seen[d] = true
		d.lastSeen = now
		d.bestPosition = i
		d.positions = append(d.positions, i)
		if len(d.positions) > positionHistoryCap {
			d.positions = d.positions[len(d.positions)-positionHistoryCap:]
		}
	}

	kept := t.details[:0]
	for _, d := range t.details {
		if !seen[d] {
			absent := now.Sub(d.lastSeen)
			if absent > decayGrace {
				factor := 1 - float64(absent-decayGrace)/float64(decayWindow)
				if factor < 0.1 {
					factor = 0.1
				}
				d.stableCount *= factor
				if d.stableCount < evictBelow {
					continue
				}
			}
		}
		kept = append(kept, d)
	}
	t.details = kept
}

// bestMatch finds the tracked word the token most plausibly continues,
// scoring candidates by 0.7·word-similarity + 0.3·position-proximity and
// requiring the similarity floor. Returns nil when nothing qualifies.
func (t *tracker) bestMatch(norm string, pos int) *wordDetail {
	var best *wordDetail
	bestScore := 0.0
	for _, d := range t.details {
		sim := wordSimilarity(norm, d.normalized)
		if sim < similarityFloor {
			continue
		}
		score := 0.7*sim + 0.3*positionProximity(pos, d.bestPosition)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// confidence is the per-token stability score used by the prefix scan:
// the sighting ramp discounted by how much the word has wandered between
// positions. Unmatched tokens score 0.
func (t *tracker) confidence(tok string, pos int) float64 {
	norm := normalizeToken(tok)
	if norm == "" {
		return 0
	}
	d := t.bestMatch(norm, pos)
	if d == nil {
		return 0
	}
	count := math.Min(1, d.stableCount/stabilityRamp)
	consistency := math.Max(0, 1-positionStdDev(d.positions)/2)
	return count * consistency
}

// durationScore is the stability-weighted mean of how long the given tokens
// have stayed visible, normalised against durationFull.
func (t *tracker) durationScore(tokens []string) float64 {
	var weighted, weights float64
	for i, tok := range tokens {
		norm := normalizeToken(tok)
		if norm == "" {
			continue
		}
		d := t.bestMatch(norm, i)
		if d == nil {
			continue
		}
		age := d.lastSeen.Sub(d.firstSeen)
		if age > durationFull {
			age = durationFull
		}
		weighted += float64(age) / float64(durationFull) * d.stableCount
		weights += d.stableCount
	}
	if weights == 0 {
		return 0
	}
	return weighted / weights
}

// wordSimilarity compares two normalised words by shared prefix and suffix
// length over the longer word's length, in runes. The suffix never overlaps
// the prefix, so identical words score exactly 1.
func wordSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	shorter, longer := len(ra), len(rb)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if longer == 0 {
		return 0
	}

	prefix := 0
	for prefix < shorter && ra[prefix] == rb[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < shorter-prefix && ra[len(ra)-1-suffix] == rb[len(rb)-1-suffix] {
		suffix++
	}
	return float64(prefix+suffix) / float64(longer)
}

// positionProximity scores how close a token's position is to where the
// word was last seen; ten positions of drift zeroes it out.
func positionProximity(pos, best int) float64 {
	drift := math.Abs(float64(pos - best))
	return math.Max(0, 1-drift/10)
}

// positionStdDev is the population standard deviation of a word's recorded
// positions. A word that keeps its slot has deviation 0.
func positionStdDev(positions []int) float64 {
	if len(positions) < 2 {
		return 0
	}
	mean := 0.0
	for _, p := range positions {
		mean += float64(p)
	}
	mean /= float64(len(positions))

	variance := 0.0
	for _, p := range positions {
		d := float64(p) - mean
		variance += d * d
	}
	variance /= float64(len(positions))
	return math.Sqrt(variance)
}
