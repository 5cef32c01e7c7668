package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/lenslate/lenslate/pkg/types"
)

// Setting is one entry of the settings descriptor: the schema the cloud's
// settings UI renders and the source of per-setting defaults.
type Setting struct {
	Key          string   `json:"key"`
	Type         string   `json:"type"`
	Label        string   `json:"label"`
	DefaultValue any      `json:"defaultValue"`
	Options      []Option `json:"options,omitempty"`
}

// Option is one choice of a select-typed setting.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Descriptor is the parsed settings descriptor file.
type Descriptor struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Settings    []Setting `json:"settings"`
}

// LoadDescriptor reads the settings descriptor, falling back to the built-in
// schema when the file is missing or malformed. Read failures are logged
// once and never fatal.
func LoadDescriptor(path string, log *slog.Logger) *Descriptor {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("config: settings descriptor unreadable, using built-in defaults", "path", path, "error", err)
		return BuiltinDescriptor()
	}
	d, err := ParseDescriptor(data)
	if err != nil {
		log.Warn("config: settings descriptor rejected, using built-in defaults", "path", path, "error", err)
		return BuiltinDescriptor()
	}
	return d
}

// ParseDescriptor parses descriptor JSON. A descriptor without settings is
// rejected so a truncated file cannot wipe the schema.
func ParseDescriptor(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse settings descriptor: %w", err)
	}
	if len(d.Settings) == 0 {
		return nil, fmt.Errorf("settings descriptor declares no settings")
	}
	return &d, nil
}

// BuiltinDescriptor returns the schema shipped with the engine.
func BuiltinDescriptor() *Descriptor {
	languages := []Option{
		{Label: "English", Value: "English"},
		{Label: "Spanish", Value: "Spanish"},
		{Label: "French", Value: "French"},
		{Label: "German", Value: "German"},
		{Label: "Italian", Value: "Italian"},
		{Label: "Portuguese", Value: "Portuguese"},
		{Label: "Japanese", Value: "Japanese"},
		{Label: "Korean", Value: "Korean"},
		{Label: "Chinese (Hanzi)", Value: "Chinese (Hanzi)"},
		{Label: "Chinese (Pinyin)", Value: "Chinese (Pinyin)"},
	}
	return &Descriptor{
		Name:        "Lenslate",
		Description: "Live translated captions on your glasses",
		Settings: []Setting{
			{Key: "transcribe_language", Type: "select", Label: "Language you hear", DefaultValue: "Spanish", Options: languages},
			{Key: "translate_language", Type: "select", Label: "Language you read", DefaultValue: "English", Options: languages},
			{Key: "line_width", Type: "select", Label: "Line width", DefaultValue: "Medium", Options: []Option{
				{Label: "Narrow", Value: "Small"},
				{Label: "Medium", Value: "Medium"},
				{Label: "Wide", Value: "Large"},
			}},
			{Key: "number_of_lines", Type: "number", Label: "Lines on screen", DefaultValue: 3},
			{Key: "display_mode", Type: "select", Label: "Display mode", DefaultValue: "everything", Options: []Option{
				{Label: "Everything", Value: "everything"},
				{Label: "Translations only", Value: "translations"},
			}},
			{Key: "confidence_heuristic", Type: "select", Label: "Caption stabilisation", DefaultValue: "WordStability", Options: []Option{
				{Label: "Off", Value: "None"},
				{Label: "Word stability", Value: "WordStability"},
				{Label: "Prefix retention", Value: "PrefixRetention"},
				{Label: "Edit distance", Value: "EditDistance"},
				{Label: "Word duration", Value: "WordDuration"},
				{Label: "Trailing decay", Value: "TrailingWordDecay"},
				{Label: "Hybrid", Value: "Hybrid"},
			}},
		},
	}
}

// DefaultSettings folds the descriptor's per-setting defaults into a
// baseline UserSettings.
func (d *Descriptor) DefaultSettings() types.UserSettings {
	base := types.UserSettings{
		SourceLanguage:      "Spanish",
		TargetLanguage:      "English",
		LineWidth:           types.LineWidthMedium,
		NumberOfLines:       3,
		DisplayMode:         types.DisplayEverything,
		ConfidenceHeuristic: types.HeuristicWordStability,
	}
	values := make([]types.SettingValue, 0, len(d.Settings))
	for _, s := range d.Settings {
		values = append(values, types.SettingValue{Key: s.Key, Value: s.DefaultValue})
	}
	return ApplySettings(base, values)
}

// ApplySettings folds raw key/value pairs onto base. Unknown keys and
// unparseable values leave base untouched, so a bad settings push can only
// ever no-op, never corrupt the session.
func ApplySettings(base types.UserSettings, values []types.SettingValue) types.UserSettings {
	out := base
	for _, v := range values {
		switch v.Key {
		case "transcribe_language", "source_language":
			if s, ok := v.Value.(string); ok && s != "" {
				out.SourceLanguage = s
			}
		case "translate_language", "target_language":
			if s, ok := v.Value.(string); ok && s != "" {
				out.TargetLanguage = s
			}
		case "line_width":
			if s, ok := v.Value.(string); ok {
				if w, ok := parseLineWidth(s); ok {
					out.LineWidth = w
				}
			}
		case "number_of_lines":
			if n, ok := toInt(v.Value); ok {
				if n < 1 {
					n = 1
				}
				if n > 5 {
					n = 5
				}
				out.NumberOfLines = n
			}
		case "display_mode":
			if s, ok := v.Value.(string); ok {
				if m := types.DisplayMode(strings.ToLower(s)); m.IsValid() {
					out.DisplayMode = m
				}
			}
		case "confidence_heuristic":
			if s, ok := v.Value.(string); ok {
				if h, ok := parseHeuristic(s); ok {
					out.ConfidenceHeuristic = h
				}
			}
		}
	}
	return out
}

func parseLineWidth(s string) (types.LineWidth, bool) {
	for _, w := range []types.LineWidth{types.LineWidthSmall, types.LineWidthMedium, types.LineWidthLarge} {
		if strings.EqualFold(s, string(w)) {
			return w, true
		}
	}
	return "", false
}

func parseHeuristic(s string) (types.Heuristic, bool) {
	for _, h := range []types.Heuristic{
		types.HeuristicNone, types.HeuristicWordStability, types.HeuristicPrefixRetention,
		types.HeuristicEditDistance, types.HeuristicWordDuration,
		types.HeuristicTrailingWordDecay, types.HeuristicHybrid,
	} {
		if strings.EqualFold(s, string(h)) {
			return h, true
		}
	}
	return "", false
}

// toInt coerces the JSON representations a settings value may arrive in.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// String renders a compact identity line for startup logging.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (%d settings)", d.Name, len(d.Settings))
}
