// Package types defines the shared types used across all Lenslate packages.
//
// These types form the lingua franca between the upstream relay client, the
// session controller, and the display/viewer surfaces. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// TranslationEvent is a single incremental speech-translation result produced
// by the upstream relay for one session. A sequence of interim events for the
// same utterance is typically followed by one final event.
type TranslationEvent struct {
	// SessionID identifies the upstream session this event belongs to.
	SessionID string

	// UserID identifies the glasses wearer.
	UserID string

	// OriginalText is the recognised speech in the source language.
	OriginalText string

	// TranslatedText is the translation (or, when DidTranslate is false, the
	// untranslated passthrough text).
	TranslatedText string

	// SourceLocale is the BCP-47-shaped locale the speech was recognised in.
	SourceLocale string

	// TargetLocale is the BCP-47-shaped locale TranslatedText is written in.
	TargetLocale string

	// DidTranslate reports whether the upstream actually translated the text.
	// False means TranslatedText is a same-language passthrough.
	DidTranslate bool

	// IsFinal marks the terminal event of an utterance. Interim events
	// (IsFinal == false) may be replaced by later interims or a final.
	IsFinal bool

	// ReceivedAt is when this event arrived at the engine.
	ReceivedAt time.Time
}

// StreamEventKind discriminates the messages delivered by an upstream stream.
type StreamEventKind int

const (
	// StreamTranslation carries a TranslationEvent.
	StreamTranslation StreamEventKind = iota

	// StreamSettings carries an updated settings snapshot pushed by the cloud.
	StreamSettings
)

// StreamEvent is one message from the upstream relay stream. Exactly one of
// the payload fields is meaningful, selected by Kind. Translation and
// settings updates share a single channel so their relative order per user
// is preserved.
type StreamEvent struct {
	Kind        StreamEventKind
	Translation TranslationEvent
	Settings    []SettingValue
}

// SettingValue is one raw key/value pair from a cloud settings push or from
// the settings descriptor. Values are strings or numbers as delivered;
// interpretation happens when the pair is folded into a [UserSettings].
type SettingValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// LineWidth selects the caption column budget on the glasses display.
type LineWidth string

const (
	LineWidthSmall  LineWidth = "Small"
	LineWidthMedium LineWidth = "Medium"
	LineWidthLarge  LineWidth = "Large"
)

// IsValid reports whether w is a recognised line width.
func (w LineWidth) IsValid() bool {
	switch w {
	case LineWidthSmall, LineWidthMedium, LineWidthLarge:
		return true
	}
	return false
}

// Columns returns the character column budget for this width. Wide (CJK)
// runes count as two columns against the budget.
func (w LineWidth) Columns() int {
	switch w {
	case LineWidthSmall:
		return 30
	case LineWidthLarge:
		return 44
	default:
		return 38
	}
}

// DisplayMode controls which events are shown on the glasses.
type DisplayMode string

const (
	// DisplayEverything shows translations and same-language passthrough text.
	DisplayEverything DisplayMode = "everything"

	// DisplayTranslations shows only translated text.
	DisplayTranslations DisplayMode = "translations"
)

// IsValid reports whether m is a recognised display mode.
func (m DisplayMode) IsValid() bool {
	return m == DisplayEverything || m == DisplayTranslations
}

// Heuristic selects the interim-confidence algorithm used to stabilise
// captions. See the confidence package for the individual algorithms.
type Heuristic string

const (
	// HeuristicNone disables stabilisation; interims pass through unchanged.
	HeuristicNone Heuristic = "None"

	// HeuristicWordStability tracks per-word stability across interims.
	HeuristicWordStability Heuristic = "WordStability"

	// HeuristicPrefixRetention scores the prefix shared with the previous interim.
	HeuristicPrefixRetention Heuristic = "PrefixRetention"

	// HeuristicEditDistance scores Levenshtein similarity to the previous interim.
	HeuristicEditDistance Heuristic = "EditDistance"

	// HeuristicWordDuration scores how long words have remained visible.
	HeuristicWordDuration Heuristic = "WordDuration"

	// HeuristicTrailingWordDecay down-weights words near the end of the interim.
	HeuristicTrailingWordDecay Heuristic = "TrailingWordDecay"

	// HeuristicHybrid blends WordStability, PrefixRetention, EditDistance and
	// TrailingWordDecay.
	HeuristicHybrid Heuristic = "Hybrid"
)

// IsValid reports whether h is a recognised heuristic name.
func (h Heuristic) IsValid() bool {
	switch h {
	case HeuristicNone, HeuristicWordStability, HeuristicPrefixRetention,
		HeuristicEditDistance, HeuristicWordDuration,
		HeuristicTrailingWordDecay, HeuristicHybrid:
		return true
	}
	return false
}

// UserSettings holds the per-user display configuration. Language fields hold
// display names (e.g. "English", "Chinese (Pinyin)") as delivered by the
// settings surface; use [LocaleFor] to resolve them to locales.
type UserSettings struct {
	// SourceLanguage is the language being spoken.
	SourceLanguage string

	// TargetLanguage is the language shown on the glasses.
	TargetLanguage string

	// LineWidth is the caption column budget.
	LineWidth LineWidth

	// NumberOfLines is the visible caption line count, between 1 and 5.
	NumberOfLines int

	// DisplayMode controls whether untranslated passthrough text is shown.
	DisplayMode DisplayMode

	// ConfidenceHeuristic selects the interim stabilisation algorithm.
	ConfidenceHeuristic Heuristic
}

// ConversationEntry is one row of the per-user conversation log. An utterance
// keeps a single stable ID across interim refinements and its final.
type ConversationEntry struct {
	// ID is stable across updates of the same utterance and unique within a
	// user for the lifetime of a viewer connection.
	ID string `json:"id"`

	// Timestamp is the entry's last update time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`

	// OriginalText is the source-language text.
	OriginalText string `json:"originalText"`

	// TranslatedText is the target-language text.
	TranslatedText string `json:"translatedText"`

	// OriginalLanguage is the display name of the source language.
	OriginalLanguage string `json:"originalLanguage"`

	// TranslatedLanguage is the display name of the target language.
	TranslatedLanguage string `json:"translatedLanguage"`

	// IsFinal reports whether the utterance has been finalised. Once true it
	// never returns to false for the same ID.
	IsFinal bool `json:"isFinal"`

	// IsNewUtterance marks the event that completed an utterance (or a final
	// that arrived without a preceding interim).
	IsNewUtterance bool `json:"isNewUtterance"`
}

// LanguagePair is the active translation direction of a session.
type LanguagePair struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DisplayOptions configures a glasses text-wall write.
type DisplayOptions struct {
	// DurationMs is how long the text stays visible, in milliseconds.
	// Zero means "until superseded".
	DurationMs int
}
