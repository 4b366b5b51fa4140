package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/samvad-xr/samvad/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{Backend: config.BackendConfig{URL: "http://localhost:5000/process_audio"}}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug
	new.Suggestion.Delay = 5 * time.Second
	new.Conversation.TargetLanguage = "ta"

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level: got %v %q, want changed to debug", d.LogLevelChanged, d.NewLogLevel)
	}
	if !d.SuggestionDelayChanged || d.NewSuggestionDelay != 5*time.Second {
		t.Errorf("suggestion delay: got %v %s, want changed to 5s", d.SuggestionDelayChanged, d.NewSuggestionDelay)
	}
	if !d.LanguagesChanged || d.NewInputLanguage != "en" || d.NewTargetLanguage != "ta" {
		t.Errorf("languages: got %v %q/%q, want changed to en/ta", d.LanguagesChanged, d.NewInputLanguage, d.NewTargetLanguage)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired: got %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Backend.URL = "http://elsewhere/process_audio"
	new.Backend.Headers = map[string]string{"X-Api-Key": "k"}
	new.Recording.SampleRate = 48000
	new.UI.OriginPatterns = []string{"headset.local"}
	new.Server.TLS = &config.TLSConfig{CertFile: "c", KeyFile: "k"}

	d := config.Diff(old, new)
	want := []string{"server.tls", "backend.url", "backend.headers", "recording", "ui"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
	}
	if d.LogLevelChanged || d.SuggestionDelayChanged || d.LanguagesChanged {
		t.Errorf("unexpected hot-reload changes: %+v", d)
	}
}
