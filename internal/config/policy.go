package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PolicyEntry marks one (device, language) combination as unsupported.
type PolicyEntry struct {
	// DeviceModel matches case-insensitively as a substring, so firmware
	// revision suffixes in the reported model name still match.
	DeviceModel string `yaml:"device_model"`

	// TargetLanguage is the display-name of the language, matched
	// case-insensitively.
	TargetLanguage string `yaml:"target_language"`

	// Reason is shown to the wearer when the combination is rejected.
	Reason string `yaml:"reason"`
}

// Policy is the table of display/language combinations the engine refuses
// to subscribe for, typically because the device cannot render the script.
type Policy struct {
	Unsupported []PolicyEntry `yaml:"unsupported"`
}

// LoadPolicy reads a policy file, falling back to the built-in table when
// the path is empty or the file is unusable.
func LoadPolicy(path string, log *slog.Logger) *Policy {
	if path == "" {
		return BuiltinPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("config: policy file unreadable, using built-in table", "path", path, "error", err)
		return BuiltinPolicy()
	}
	var p Policy
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		log.Warn("config: policy file malformed, using built-in table", "path", path, "error", err)
		return BuiltinPolicy()
	}
	return &p
}

// BuiltinPolicy covers the known monochrome waveguide displays, which ship
// without CJK glyph support. Pinyin targets stay supported on them since the
// transliterated text is Latin.
func BuiltinPolicy() *Policy {
	glyphless := []string{"Chinese", "Chinese (Hanzi)", "Japanese", "Korean"}
	models := []string{"Mentra Mach1", "Vuzix Z100"}

	var entries []PolicyEntry
	for _, m := range models {
		for _, lang := range glyphless {
			entries = append(entries, PolicyEntry{
				DeviceModel:    m,
				TargetLanguage: lang,
				Reason:         fmt.Sprintf("%s cannot display %s characters. Try Chinese (Pinyin) or another language.", m, lang),
			})
		}
	}
	return &Policy{Unsupported: entries}
}

// Check reports whether the combination is unsupported and, if so, the
// wearer-facing reason.
func (p *Policy) Check(deviceModel, targetLanguage string) (string, bool) {
	if p == nil || deviceModel == "" {
		return "", false
	}
	model := strings.ToLower(deviceModel)
	for _, e := range p.Unsupported {
		if !strings.Contains(model, strings.ToLower(e.DeviceModel)) {
			continue
		}
		if strings.EqualFold(targetLanguage, e.TargetLanguage) {
			return e.Reason, true
		}
	}
	return "", false
}
