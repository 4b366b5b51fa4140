package config

import (
	"maps"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SuggestionDelayChanged bool
	NewSuggestionDelay     time.Duration

	LanguagesChanged  bool
	NewInputLanguage  string
	NewTargetLanguage string

	// RestartRequired names the changed config sections that only take effect
	// after a restart, e.g. "backend.url".
	RestartRequired []string
}

// Changed reports whether d contains any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.SuggestionDelayChanged || d.LanguagesChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Suggestion.Delay != new.Suggestion.Delay {
		d.SuggestionDelayChanged = true
		d.NewSuggestionDelay = new.Suggestion.Delay
	}

	if old.Conversation.InputLanguage != new.Conversation.InputLanguage ||
		old.Conversation.TargetLanguage != new.Conversation.TargetLanguage {
		d.LanguagesChanged = true
		d.NewInputLanguage = new.Conversation.InputLanguage
		d.NewTargetLanguage = new.Conversation.TargetLanguage
	}

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.tls", !tlsEqual(old.Server.TLS, new.Server.TLS))
	restart("server.tick_interval", old.Server.TickInterval != new.Server.TickInterval)
	restart("backend.url", old.Backend.URL != new.Backend.URL)
	restart("backend.timeout", old.Backend.Timeout != new.Backend.Timeout)
	restart("backend.headers", !maps.Equal(old.Backend.Headers, new.Backend.Headers))
	restart("backend.circuit_breaker", old.Backend.CircuitBreaker != new.Backend.CircuitBreaker)
	restart("conversation.languages", !slices.Equal(old.Conversation.Languages, new.Conversation.Languages))
	restart("conversation.objects", !slices.Equal(old.Conversation.Objects, new.Conversation.Objects))
	restart("recording", old.Recording != new.Recording)
	restart("ui", !uiEqual(old.UI, new.UI))

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func uiEqual(a, b UIConfig) bool {
	return slices.Equal(a.OriginPatterns, b.OriginPatterns) &&
		a.PlaybackCodec == b.PlaybackCodec &&
		a.OpusBitrate == b.OpusBitrate &&
		a.ReplyDir == b.ReplyDir &&
		a.LogEvents == b.LogEvents
}
