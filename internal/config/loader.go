package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"assistant": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":       {"openai", "deepgram"},
	"tts":       {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Backend
	if cfg.Backend.BaseURL != "" && !strings.HasPrefix(cfg.Backend.BaseURL, "http") {
		errs = append(errs, fmt.Errorf("backend.base_url %q must be an http(s) URL", cfg.Backend.BaseURL))
	}
	if cfg.Backend.BaseURL == "" {
		slog.Warn("backend.base_url is empty; running on the local stand-in only")
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout_seconds %d must not be negative", cfg.Backend.TimeoutSeconds))
	}
	if cfg.Backend.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("backend.max_failures %d must not be negative", cfg.Backend.MaxFailures))
	}
	if cfg.Backend.ResetSeconds < 0 {
		errs = append(errs, fmt.Errorf("backend.reset_seconds %d must not be negative", cfg.Backend.ResetSeconds))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("assistant", cfg.Assistant.Name)
	validateProviderName("stt", cfg.Voice.STT.Name)
	validateProviderName("tts", cfg.Voice.TTS.Name)

	if cfg.Assistant.Name != "" && cfg.Assistant.Model == "" {
		errs = append(errs, fmt.Errorf("assistant.model is required when assistant.name is %q", cfg.Assistant.Name))
	}

	// Voice
	if cfg.Voice.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate %d must not be negative", cfg.Voice.SampleRate))
	}
	if cfg.Voice.SpeedFactor != 0 {
		if cfg.Voice.SpeedFactor < 0.5 || cfg.Voice.SpeedFactor > 2.0 {
			errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Voice.SpeedFactor))
		}
	}
	if cfg.Voice.STT.Name != "" && cfg.Voice.TTS.Name == "" {
		slog.Warn("voice.stt is configured without voice.tts; citizens can speak but replies stay text-only")
	}

	// Tracking
	if cfg.Tracking.PostgresDSN == "" {
		slog.Warn("tracking.postgres_dsn is empty; tracking PINs will not survive a restart")
	}

	// Session
	if cfg.Session.CalendarDelayMS < 0 {
		errs = append(errs, fmt.Errorf("session.calendar_delay_ms %d must not be negative", cfg.Session.CalendarDelayMS))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
