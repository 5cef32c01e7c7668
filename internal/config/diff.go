package config

import "github.com/lenslate/lenslate/pkg/types"

// SettingsDiff describes what changed between two settings snapshots.
// The session worker uses it to decide how much state survives a settings
// push: language changes throw caption state away, layout changes replay it.
type SettingsDiff struct {
	SourceLanguageChanged bool
	TargetLanguageChanged bool
	LayoutChanged         bool // line width or line count
	DisplayModeChanged    bool
	HeuristicChanged      bool
}

// LanguageChanged reports whether either side of the translation pair moved.
func (d SettingsDiff) LanguageChanged() bool {
	return d.SourceLanguageChanged || d.TargetLanguageChanged
}

// Any reports whether anything changed at all.
func (d SettingsDiff) Any() bool {
	return d.SourceLanguageChanged || d.TargetLanguageChanged ||
		d.LayoutChanged || d.DisplayModeChanged || d.HeuristicChanged
}

// DiffSettings compares old and new settings and returns what changed.
// Languages compare by locale subtag, not display name, so renaming
// "Chinese" to "Chinese (Hanzi)" in the settings UI is not a language change.
func DiffSettings(old, new types.UserSettings) SettingsDiff {
	d := SettingsDiff{}

	if !sameLanguageSetting(old.SourceLanguage, new.SourceLanguage) {
		d.SourceLanguageChanged = true
	}
	if !sameLanguageSetting(old.TargetLanguage, new.TargetLanguage) {
		d.TargetLanguageChanged = true
	}
	if old.LineWidth != new.LineWidth || old.NumberOfLines != new.NumberOfLines {
		d.LayoutChanged = true
	}
	if old.DisplayMode != new.DisplayMode {
		d.DisplayModeChanged = true
	}
	if old.ConfidenceHeuristic != new.ConfidenceHeuristic {
		d.HeuristicChanged = true
	}

	return d
}

// sameLanguageSetting compares two language display names at the locale
// level. Pinyin is its own rendering of Chinese, so a Hanzi to Pinyin switch
// still counts as a change even though both resolve to zh.
func sameLanguageSetting(old, new string) bool {
	if old == new {
		return true
	}
	oldLoc, okOld := types.LocaleFor(old)
	newLoc, okNew := types.LocaleFor(new)
	if !okOld || !okNew {
		return false
	}
	if types.IsPinyin(old) != types.IsPinyin(new) {
		return false
	}
	return types.SameLanguage(oldLoc, newLoc)
}
