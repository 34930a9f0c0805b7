package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is true when the synthesis profile (voice_id or
	// speed_factor) changed. Provider swaps require a restart and are not
	// tracked here.
	VoiceChanged bool

	// AssistantModelChanged is true when the assistant model name changed
	// within the same provider.
	AssistantModelChanged bool
	NewAssistantModel     string

	// CalendarDelayChanged is true when session.calendar_delay_ms changed.
	CalendarDelayChanged bool
	NewCalendarDelayMS   int
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Voice.VoiceID != new.Voice.VoiceID || old.Voice.SpeedFactor != new.Voice.SpeedFactor {
		d.VoiceChanged = true
	}

	if old.Assistant.Name == new.Assistant.Name && old.Assistant.Model != new.Assistant.Model {
		d.AssistantModelChanged = true
		d.NewAssistantModel = new.Assistant.Model
	}

	if old.Session.CalendarDelayMS != new.Session.CalendarDelayMS {
		d.CalendarDelayChanged = true
		d.NewCalendarDelayMS = new.Session.CalendarDelayMS
	}

	return d
}
