package types

import "strings"

// DefaultLocale is the fallback locale when a language cannot be resolved.
const DefaultLocale = "en-US"

// localeByName maps language display names (as they appear in user settings)
// to the locale sent upstream for recognition and translation.
var localeByName = map[string]string{
	"english":          "en-US",
	"spanish":          "es-ES",
	"french":           "fr-FR",
	"german":           "de-DE",
	"italian":          "it-IT",
	"portuguese":       "pt-BR",
	"dutch":            "nl-NL",
	"russian":          "ru-RU",
	"polish":           "pl-PL",
	"swedish":          "sv-SE",
	"norwegian":        "no-NO",
	"danish":           "da-DK",
	"turkish":          "tr-TR",
	"greek":            "el-GR",
	"ukrainian":        "uk-UA",
	"czech":            "cs-CZ",
	"hebrew":           "he-IL",
	"arabic":           "ar-SA",
	"hindi":            "hi-IN",
	"thai":             "th-TH",
	"vietnamese":       "vi-VN",
	"indonesian":       "id-ID",
	"japanese":         "ja-JP",
	"korean":           "ko-KR",
	"chinese":          "zh-CN",
	"chinese (hanzi)":  "zh-CN",
	"chinese (pinyin)": "zh-CN",
}

// nameBySubtag is the reverse mapping used to label conversation entries.
var nameBySubtag = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"pl": "Polish",
	"sv": "Swedish",
	"no": "Norwegian",
	"da": "Danish",
	"tr": "Turkish",
	"el": "Greek",
	"uk": "Ukrainian",
	"cs": "Czech",
	"he": "Hebrew",
	"ar": "Arabic",
	"hi": "Hindi",
	"th": "Thai",
	"vi": "Vietnamese",
	"id": "Indonesian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
}

// LocaleFor resolves a language display name to its locale. It also accepts
// values that are already locale-shaped ("es-ES") and passes them through.
// Unknown languages resolve to [DefaultLocale] with ok == false so callers
// can degrade gracefully instead of failing the session.
func LocaleFor(language string) (locale string, ok bool) {
	s := strings.TrimSpace(language)
	if s == "" {
		return DefaultLocale, false
	}
	if l, found := localeByName[strings.ToLower(s)]; found {
		return l, true
	}
	if strings.Contains(s, "-") {
		if _, known := nameBySubtag[Subtag(s)]; known {
			return s, true
		}
	}
	return DefaultLocale, false
}

// LanguageName returns the display name for a locale ("es-ES" -> "Spanish").
// Unknown locales are returned unchanged so they remain identifiable.
func LanguageName(locale string) string {
	if name, ok := nameBySubtag[Subtag(locale)]; ok {
		return name
	}
	return locale
}

// Subtag extracts the lowercase primary language subtag of a locale:
// "en-US" -> "en", "zh" -> "zh".
func Subtag(locale string) string {
	s := strings.TrimSpace(locale)
	if i := strings.IndexAny(s, "-_"); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// SameLanguage reports whether two locales share a primary language subtag.
// "en-US" and "en-GB" are the same language; "en-US" and "fr-FR" are not.
func SameLanguage(a, b string) bool {
	sa, sb := Subtag(a), Subtag(b)
	return sa != "" && sa == sb
}

// characterTokenized lists the language subtags written without spaces
// between words. Text in these languages is tokenised per character and
// measured at double display width.
var characterTokenized = map[string]bool{
	"zh": true,
	"ja": true,
	"ko": true,
	"th": true,
}

// IsCharacterTokenized reports whether the locale's script is written without
// word-separating spaces.
func IsCharacterTokenized(locale string) bool {
	return characterTokenized[Subtag(locale)]
}

// IsPinyin reports whether the language setting requests Chinese transliterated
// to Pinyin rather than rendered in Hanzi.
func IsPinyin(language string) bool {
	return strings.EqualFold(strings.TrimSpace(language), "chinese (pinyin)")
}
