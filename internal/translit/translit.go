// Package translit converts Chinese display text to Pinyin romanisation.
//
// Users who are learning Mandarin can select "Chinese (Pinyin)" as their
// target language; translations still arrive as Hanzi and are transliterated
// here just before display. The conversion is glasses-only — the
// conversation log keeps the original Hanzi.
package translit

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// ToPinyin renders every Han rune of text as a tone-marked Pinyin syllable,
// leaving other runs of text untouched. Syllables and preserved words are
// separated by single spaces; punctuation attaches to the preceding token.
func ToPinyin(text string) string {
	args := pinyin.NewArgs()
	args.Style = pinyin.Tone

	var tokens []string
	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, literal.String())
			literal.Reset()
		}
	}

	for _, r := range text {
		if syl := hanSyllable(r, args); syl != "" {
			flush()
			tokens = append(tokens, syl)
			continue
		}
		switch {
		case unicode.IsSpace(r):
			flush()
		case isTrailingPunct(r) && literal.Len() == 0 && len(tokens) > 0:
			tokens[len(tokens)-1] += string(r)
		default:
			literal.WriteRune(r)
		}
	}
	flush()
	return strings.Join(tokens, " ")
}

// hanSyllable returns the Pinyin reading of r, or "" when r is not a Han
// rune with a known reading.
func hanSyllable(r rune, args pinyin.Args) string {
	readings := pinyin.Pinyin(string(r), args)
	if len(readings) == 0 || len(readings[0]) == 0 {
		return ""
	}
	return readings[0][0]
}

func isTrailingPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
