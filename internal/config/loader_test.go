package config_test

import (
	"strings"
	"testing"

	"github.com/identia-project/identia/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: info
backend:
  base_url: "https://api.registraduria.gov.co"
  timeout_seconds: 10
  max_failures: 5
  reset_seconds: 30
assistant:
  name: openai
  model: gpt-4o-mini
  api_key: sk-test
voice:
  stt:
    name: openai
    api_key: sk-test
  tts:
    name: openai
    api_key: sk-test
  language: es-CO
  sample_rate: 16000
  voice_id: nova
  speed_factor: 1.0
tracking:
  postgres_dsn: "postgres://localhost/identia"
session:
  calendar_delay_ms: 2500
observe:
  metrics_addr: ":9090"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Assistant.Model != "gpt-4o-mini" {
		t.Errorf("assistant.model = %q", cfg.Assistant.Model)
	}
	if cfg.Voice.Language != "es-CO" {
		t.Errorf("voice.language = %q", cfg.Voice.Language)
	}
	if cfg.Session.CalendarDelayMS != 2500 {
		t.Errorf("calendar_delay_ms = %d", cfg.Session.CalendarDelayMS)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  listen_adr: ":8081"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_AssistantRequiresModel(t *testing.T) {
	t.Parallel()
	yaml := `
assistant:
  name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for assistant without model, got nil")
	}
	if !strings.Contains(err.Error(), "assistant.model") {
		t.Errorf("error should mention assistant.model, got: %v", err)
	}
}

func TestValidate_SpeedFactorRange(t *testing.T) {
	t.Parallel()
	yaml := `
voice:
  speed_factor: 3.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range speed factor, got nil")
	}
	if !strings.Contains(err.Error(), "speed_factor") {
		t.Errorf("error should mention speed_factor, got: %v", err)
	}
}

func TestValidate_BackendURLScheme(t *testing.T) {
	t.Parallel()
	yaml := `
backend:
  base_url: "registraduria.gov.co"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for non-http base URL, got nil")
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/identia/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
voice:
  speed_factor: 0.1
session:
  calendar_delay_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"log_level", "speed_factor", "calendar_delay_ms"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	// Nothing configured means local stand-in, text-only, in-memory PINs.
	if _, err := config.LoadFromReader(strings.NewReader("{}")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	names := config.ValidProviderNames["assistant"]
	if len(names) == 0 {
		t.Fatal("ValidProviderNames[\"assistant\"] should not be empty")
	}
	found := false
	for _, n := range names {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"assistant\"] should contain \"openai\"")
	}
}
