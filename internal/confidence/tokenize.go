package confidence

import (
	"strings"
	"unicode"
)

// tokenize splits display text into the units the stabiliser reasons about.
// Space-delimited scripts split on whitespace; character-tokenised scripts
// treat every non-space rune as its own token, since word boundaries are not
// marked in the text.
func tokenize(text string, characterTokenized bool) []string {
	if !characterTokenized {
		return strings.Fields(text)
	}
	tokens := make([]string, 0, len(text)/3)
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		tokens = append(tokens, string(r))
	}
	return tokens
}

// normalizeToken reduces a token to its comparison key: lowercased with
// leading and trailing punctuation stripped. Tokens that are all punctuation
// normalise to the empty string and are ignored by the tracker.
func normalizeToken(tok string) string {
	trimmed := strings.TrimFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return strings.ToLower(trimmed)
}
