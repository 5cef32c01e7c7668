// Package config assembles the engine configuration from the environment,
// an optional tuning file and the settings descriptor.
//
// Identity and credentials come from environment variables (with .env
// support for local development), while behavioural tuning lives in an
// optional YAML file whose absence means defaults. Missing required
// variables are the only fatal startup errors; everything else degrades
// with a logged warning.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment selects the viewer authentication policy.
type Environment string

const (
	// EnvProduction requires valid viewer tokens on every authenticated route.
	EnvProduction Environment = "production"

	// EnvDevelopment allows tokenless viewers to fall back to a dev user.
	EnvDevelopment Environment = "development"
)

// Defaults applied when the corresponding variable is absent.
const (
	DefaultPort         = 80
	DefaultUpstreamURL  = "wss://prod.augmentos.cloud/app-ws"
	DefaultSettingsPath = "config/settings.json"
)

// Config is the fully resolved engine configuration.
type Config struct {
	// PackageName identifies this app to the upstream cloud. Required.
	PackageName string

	// APIKey authenticates against the upstream cloud and seeds viewer
	// token derivation. Required.
	APIKey string

	// Port is the HTTP listen port for webhooks and the viewer surface.
	Port int

	// Env selects production or development authentication behaviour.
	Env Environment

	// UpstreamURL is the websocket endpoint of the upstream cloud.
	UpstreamURL string

	// SettingsPath locates the JSON settings descriptor.
	SettingsPath string

	// PolicyPath optionally locates the unsupported-combination table;
	// empty selects the built-in table.
	PolicyPath string

	// Tuning holds the behavioural knobs.
	Tuning Tuning
}

// Tuning are the behavioural knobs, loadable from a YAML file named by
// LENSLATE_CONFIG. Unknown keys in the file are rejected so typos fail
// loudly instead of silently running defaults.
type Tuning struct {
	// DebounceInterval is the minimum spacing between interim glasses writes.
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// InactivityTimeout clears the display and conversation after this long
	// without translation events.
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`

	// MaxFinalCaptions bounds the caption history kept for the display.
	MaxFinalCaptions int `yaml:"max_final_captions"`

	// MaxLogEntries bounds the conversation log.
	MaxLogEntries int `yaml:"max_log_entries"`

	// ConfidenceThreshold is the stabiliser's per-word acceptance cutoff,
	// in (0, 1].
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// SubscriberBuffer is the per-viewer outbound queue capacity.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// LogLevel controls verbosity: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// DefaultTuning returns the tuning used when no file is configured.
func DefaultTuning() Tuning {
	return Tuning{
		DebounceInterval:    400 * time.Millisecond,
		InactivityTimeout:   40 * time.Second,
		MaxFinalCaptions:    100,
		MaxLogEntries:       500,
		ConfidenceThreshold: 0.4,
		SubscriberBuffer:    64,
		LogLevel:            "info",
	}
}

// Validate reports every problem with the tuning at once.
func (t Tuning) Validate() error {
	var errs []error
	if t.DebounceInterval <= 0 {
		errs = append(errs, fmt.Errorf("debounce_interval must be positive, got %v", t.DebounceInterval))
	}
	if t.InactivityTimeout <= t.DebounceInterval {
		errs = append(errs, fmt.Errorf("inactivity_timeout %v must exceed debounce_interval %v", t.InactivityTimeout, t.DebounceInterval))
	}
	if t.MaxFinalCaptions <= 0 {
		errs = append(errs, fmt.Errorf("max_final_captions must be positive, got %d", t.MaxFinalCaptions))
	}
	if t.MaxLogEntries <= 0 {
		errs = append(errs, fmt.Errorf("max_log_entries must be positive, got %d", t.MaxLogEntries))
	}
	if t.ConfidenceThreshold <= 0 || t.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold must be in (0, 1], got %v", t.ConfidenceThreshold))
	}
	if t.SubscriberBuffer <= 0 {
		errs = append(errs, fmt.Errorf("subscriber_buffer must be positive, got %d", t.SubscriberBuffer))
	}
	if _, err := ParseLogLevel(t.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a tuning log level name to a slog level. The empty
// string means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
}

// Load resolves the configuration from the process environment. A .env file
// in the working directory is folded in first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		PackageName:  os.Getenv("PACKAGE_NAME"),
		APIKey:       os.Getenv("AUGMENTOS_API_KEY"),
		Port:         DefaultPort,
		Env:          EnvDevelopment,
		UpstreamURL:  DefaultUpstreamURL,
		SettingsPath: DefaultSettingsPath,
		PolicyPath:   os.Getenv("UNSUPPORTED_PATH"),
		Tuning:       DefaultTuning(),
	}

	var errs []error
	if cfg.PackageName == "" {
		errs = append(errs, errors.New("PACKAGE_NAME is required"))
	}
	if cfg.APIKey == "" {
		errs = append(errs, errors.New("AUGMENTOS_API_KEY is required"))
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT %q is not a number: %w", v, err))
		} else {
			cfg.Port = port
		}
	}
	if os.Getenv("NODE_ENV") == string(EnvProduction) {
		cfg.Env = EnvProduction
	}
	if v := os.Getenv("AUGMENTOS_WS_URL"); v != "" {
		cfg.UpstreamURL = v
	}
	if v := os.Getenv("SETTINGS_PATH"); v != "" {
		cfg.SettingsPath = v
	}

	if path := os.Getenv("LENSLATE_CONFIG"); path != "" {
		tuning, err := loadTuning(path)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Tuning = tuning
		}
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	u, err := url.Parse(c.UpstreamURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("upstream url: %w", err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("upstream url %q must use ws or wss", c.UpstreamURL))
	}
	if err := c.Tuning.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// loadTuning reads and validates a tuning file. Defaults fill fields the
// file leaves unset, so partial files only override what they name.
func loadTuning(path string) (Tuning, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("open tuning file: %w", err)
	}
	defer f.Close()

	var tuning Tuning
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&tuning); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning file %s: %w", path, err)
	}

	defaults := DefaultTuning()
	if tuning.DebounceInterval == 0 {
		tuning.DebounceInterval = defaults.DebounceInterval
	}
	if tuning.InactivityTimeout == 0 {
		tuning.InactivityTimeout = defaults.InactivityTimeout
	}
	if tuning.MaxFinalCaptions == 0 {
		tuning.MaxFinalCaptions = defaults.MaxFinalCaptions
	}
	if tuning.MaxLogEntries == 0 {
		tuning.MaxLogEntries = defaults.MaxLogEntries
	}
	if tuning.ConfidenceThreshold == 0 {
		tuning.ConfidenceThreshold = defaults.ConfidenceThreshold
	}
	if tuning.SubscriberBuffer == 0 {
		tuning.SubscriberBuffer = defaults.SubscriberBuffer
	}
	if tuning.LogLevel == "" {
		tuning.LogLevel = defaults.LogLevel
	}
	return tuning, nil
}

// LogNotes emits soft configuration notices at startup.
func (c *Config) LogNotes(log *slog.Logger) {
	if c.Env != EnvProduction {
		log.Warn("config: development mode, viewer auth falls back to dev-user")
	}
	if c.PolicyPath == "" {
		log.Info("config: using built-in unsupported-combination table")
	}
}
