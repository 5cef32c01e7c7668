package types

import "testing"

func TestLocaleFor(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     string
		wantOK   bool
	}{
		{name: "display name", language: "Spanish", want: "es-ES", wantOK: true},
		{name: "case insensitive", language: "german", want: "de-DE", wantOK: true},
		{name: "pinyin variant", language: "Chinese (Pinyin)", want: "zh-CN", wantOK: true},
		{name: "already a locale", language: "fr-FR", want: "fr-FR", wantOK: true},
		{name: "unknown language", language: "Klingon", want: DefaultLocale, wantOK: false},
		{name: "empty", language: "", want: DefaultLocale, wantOK: false},
		{name: "whitespace", language: "  English  ", want: "en-US", wantOK: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LocaleFor(tc.language)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("LocaleFor(%q) = (%q, %v), want (%q, %v)", tc.language, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestLanguageName(t *testing.T) {
	if got := LanguageName("en-US"); got != "English" {
		t.Errorf("LanguageName(en-US) = %q, want English", got)
	}
	if got := LanguageName("zh-CN"); got != "Chinese" {
		t.Errorf("LanguageName(zh-CN) = %q, want Chinese", got)
	}
	if got := LanguageName("xx-XX"); got != "xx-XX" {
		t.Errorf("LanguageName(xx-XX) = %q, want passthrough", got)
	}
}

func TestSameLanguage(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"en-US", "en-GB", true},
		{"en-US", "en", true},
		{"en-US", "fr-FR", false},
		{"zh_CN", "zh-TW", true},
		{"", "en-US", false},
		{"", "", false},
	}
	for _, tc := range tests {
		if got := SameLanguage(tc.a, tc.b); got != tc.want {
			t.Errorf("SameLanguage(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIsCharacterTokenized(t *testing.T) {
	for _, locale := range []string{"zh-CN", "ja-JP", "ko-KR", "th-TH"} {
		if !IsCharacterTokenized(locale) {
			t.Errorf("IsCharacterTokenized(%q) = false, want true", locale)
		}
	}
	for _, locale := range []string{"en-US", "ru-RU", "ar-SA"} {
		if IsCharacterTokenized(locale) {
			t.Errorf("IsCharacterTokenized(%q) = true, want false", locale)
		}
	}
}

func TestIsPinyin(t *testing.T) {
	if !IsPinyin("Chinese (Pinyin)") {
		t.Error("IsPinyin(Chinese (Pinyin)) = false, want true")
	}
	if IsPinyin("Chinese") || IsPinyin("Chinese (Hanzi)") || IsPinyin("") {
		t.Error("IsPinyin matched a non-Pinyin language")
	}
}

func TestLineWidth_Columns(t *testing.T) {
	tests := []struct {
		width LineWidth
		want  int
	}{
		{LineWidthSmall, 30},
		{LineWidthMedium, 38},
		{LineWidthLarge, 44},
		{LineWidth("bogus"), 38},
	}
	for _, tc := range tests {
		if got := tc.width.Columns(); got != tc.want {
			t.Errorf("LineWidth(%q).Columns() = %d, want %d", tc.width, got, tc.want)
		}
	}
}

func TestHeuristic_IsValid(t *testing.T) {
	valid := []Heuristic{
		HeuristicNone, HeuristicWordStability, HeuristicPrefixRetention,
		HeuristicEditDistance, HeuristicWordDuration,
		HeuristicTrailingWordDecay, HeuristicHybrid,
	}
	for _, h := range valid {
		if !h.IsValid() {
			t.Errorf("Heuristic(%q).IsValid() = false, want true", h)
		}
	}
	if Heuristic("wordstability").IsValid() {
		t.Error("heuristic names are case sensitive, lowercase should be invalid")
	}
}
