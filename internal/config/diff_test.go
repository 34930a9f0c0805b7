package config_test

import (
	"testing"

	"github.com/identia-project/identia/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Server.LogLevel = config.LogInfo
	cfg.Voice.VoiceID = "nova"

	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.VoiceChanged || d.AssistantModelChanged || d.CalendarDelayChanged {
		t.Errorf("identical configs should produce an empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	new := &config.Config{}
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_Voice(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Voice.VoiceID = "nova"
	old.Voice.SpeedFactor = 1.0
	new := &config.Config{}
	new.Voice.VoiceID = "nova"
	new.Voice.SpeedFactor = 0.9

	if d := config.Diff(old, new); !d.VoiceChanged {
		t.Error("speed factor change should set VoiceChanged")
	}

	new.Voice.SpeedFactor = 1.0
	new.Voice.VoiceID = "shimmer"
	if d := config.Diff(old, new); !d.VoiceChanged {
		t.Error("voice id change should set VoiceChanged")
	}
}

func TestDiff_AssistantModel(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Assistant.Name = "openai"
	old.Assistant.Model = "gpt-4o-mini"
	new := &config.Config{}
	new.Assistant.Name = "openai"
	new.Assistant.Model = "gpt-4o"

	d := config.Diff(old, new)
	if !d.AssistantModelChanged {
		t.Fatal("AssistantModelChanged should be true")
	}
	if d.NewAssistantModel != "gpt-4o" {
		t.Errorf("NewAssistantModel = %q", d.NewAssistantModel)
	}

	// A provider swap is not hot-reloadable and must not be reported as a
	// model change.
	new.Assistant.Name = "anthropic"
	if d := config.Diff(old, new); d.AssistantModelChanged {
		t.Error("provider swap should not set AssistantModelChanged")
	}
}

func TestDiff_CalendarDelay(t *testing.T) {
	t.Parallel()
	old := &config.Config{}
	old.Session.CalendarDelayMS = 2500
	new := &config.Config{}
	new.Session.CalendarDelayMS = 1000

	d := config.Diff(old, new)
	if !d.CalendarDelayChanged {
		t.Fatal("CalendarDelayChanged should be true")
	}
	if d.NewCalendarDelayMS != 1000 {
		t.Errorf("NewCalendarDelayMS = %d", d.NewCalendarDelayMS)
	}
}
