package confidence

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// prefixLen counts the leading tokens of cur that match prev, compared by
// normalised text.
func prefixLen(cur, prev []string) int {
	n := 0
	for n < len(cur) && n < len(prev) {
		if normalizeToken(cur[n]) != normalizeToken(prev[n]) {
			break
		}
		n++
	}
	return n
}

// retentionScore is the fraction of the current interim covered by the prefix
// it shares with the previous interim. The first interim of an utterance has
// nothing to retain and scores 0.
func retentionScore(cur, prev []string) float64 {
	if len(cur) == 0 {
		return 0
	}
	return float64(prefixLen(cur, prev)) / float64(len(cur))
}

// editScore is the Levenshtein similarity between the current and previous
// interim text: 1 for identical strings, 0 for a complete rewrite or for the
// first interim of an utterance.
func editScore(cur, prev []string) float64 {
	if len(cur) == 0 && len(prev) == 0 {
		return 0
	}
	a := strings.ToLower(strings.Join(cur, " "))
	b := strings.ToLower(strings.Join(prev, " "))
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	score := 1 - float64(dist)/float64(longest)
	return clamp01(score)
}
