package caption

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// runeWidth is the display column cost of a rune. East Asian wide and
// fullwidth runes occupy two columns on the glasses' fixed-pitch display.
func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// textWidth is the display column cost of a string.
func textWidth(s string) int {
	w := 0
	for _, r := range s {
		w += runeWidth(r)
	}
	return w
}

// wrapLines breaks text into lines no wider than cols display columns.
// Space-delimited scripts prefer word boundaries; character-tokenised
// scripts break at any rune. Overlong words fall back to rune breaking.
func wrapLines(text string, cols int, cjk bool) []string {
	if cols < 1 {
		cols = 1
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if cjk {
		return wrapRunes(text, cols)
	}
	return wrapWords(text, cols)
}

// wrapWords greedily packs whitespace-delimited words into lines.
func wrapWords(text string, cols int) []string {
	var lines []string
	var line strings.Builder
	lineWidth := 0

	flush := func() {
		if line.Len() > 0 {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
	}

	for _, word := range strings.Fields(text) {
		w := textWidth(word)
		if w > cols {
			// The word alone exceeds a line; break it at rune boundaries.
			flush()
			lines = append(lines, wrapRunes(word, cols)...)
			continue
		}
		need := w
		if lineWidth > 0 {
			need++ // joining space
		}
		if lineWidth+need > cols {
			flush()
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += w
	}
	flush()
	return lines
}

// wrapRunes packs runes into lines by display width, dropping whitespace
// that would begin a line.
func wrapRunes(text string, cols int) []string {
	var lines []string
	var line strings.Builder
	lineWidth := 0

	for _, r := range text {
		w := runeWidth(r)
		if lineWidth+w > cols && lineWidth > 0 {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
		if lineWidth == 0 && unicode.IsSpace(r) {
			continue
		}
		line.WriteRune(r)
		lineWidth += w
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
