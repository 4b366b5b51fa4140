package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/samvad-xr/samvad/internal/conversation"
	"github.com/samvad-xr/samvad/pkg/audio"
)

// Environment variables that override values from the config file.
const (
	EnvBackendURL = "SAMVAD_BACKEND_URL"
	EnvLogLevel   = "SAMVAD_LOG_LEVEL"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultTickInterval       = 100 * time.Millisecond
	DefaultBackendTimeout     = 60 * time.Second
	DefaultMaxFailures        = 3
	DefaultResetTimeout       = 30 * time.Second
	DefaultSuggestionDelay    = 20 * time.Second
	DefaultMaxDurationSeconds = 300
	DefaultSampleRate         = 16000
	DefaultOpusBitrate        = 32000
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the SAMVAD_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		cfg.Backend.URL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.TickInterval == 0 {
		cfg.Server.TickInterval = DefaultTickInterval
	}

	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.CircuitBreaker.MaxFailures == 0 {
		cfg.Backend.CircuitBreaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Backend.CircuitBreaker.ResetTimeout == 0 {
		cfg.Backend.CircuitBreaker.ResetTimeout = DefaultResetTimeout
	}

	if cfg.Conversation.InputLanguage == "" {
		cfg.Conversation.InputLanguage = conversation.DefaultInputLanguage
	}
	if cfg.Conversation.TargetLanguage == "" {
		cfg.Conversation.TargetLanguage = conversation.DefaultTargetLanguage
	}

	if cfg.Suggestion.Delay == 0 {
		cfg.Suggestion.Delay = DefaultSuggestionDelay
	}

	if cfg.Recording.Source == "" {
		cfg.Recording.Source = SourceUI
	}
	if cfg.Recording.MaxDurationSeconds == 0 {
		cfg.Recording.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	if cfg.Recording.SampleRate == 0 {
		cfg.Recording.SampleRate = DefaultSampleRate
	}
	if cfg.Recording.SampleScaling == "" {
		cfg.Recording.SampleScaling = audio.ScaleWrap.String()
	}

	if cfg.UI.PlaybackCodec == "" {
		cfg.UI.PlaybackCodec = CodecWAV
	}
	if cfg.UI.OpusBitrate == 0 {
		cfg.UI.OpusBitrate = DefaultOpusBitrate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("server.tick_interval %s must be positive", cfg.Server.TickInterval))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Backend
	if cfg.Backend.URL == "" {
		errs = append(errs, fmt.Errorf("backend.url is required (or set %s)", EnvBackendURL))
	} else if u, err := url.Parse(cfg.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url %q must be an absolute http or https URL", cfg.Backend.URL))
	}
	if cfg.Backend.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout %s must be positive", cfg.Backend.Timeout))
	}
	if cfg.Backend.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.circuit_breaker.reset_timeout %s must be positive", cfg.Backend.CircuitBreaker.ResetTimeout))
	}

	// Conversation
	codes := make([]string, 0, len(cfg.Conversation.Languages))
	for i, l := range cfg.Conversation.Languages {
		prefix := fmt.Sprintf("conversation.languages[%d]", i)
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if l.Code == "" {
			errs = append(errs, fmt.Errorf("%s.code is required", prefix))
			continue
		}
		if slices.Contains(codes, l.Code) {
			errs = append(errs, fmt.Errorf("%s.code %q is a duplicate", prefix, l.Code))
		}
		codes = append(codes, l.Code)
	}
	if len(codes) == 0 {
		for _, l := range conversation.DefaultLanguages {
			codes = append(codes, l.Code)
		}
	}
	for _, f := range []struct{ name, code string }{
		{"input_language", cfg.Conversation.InputLanguage},
		{"target_language", cfg.Conversation.TargetLanguage},
	} {
		if f.code != "" && !slices.Contains(codes, f.code) {
			errs = append(errs, fmt.Errorf("conversation.%s %q is not a configured language code; valid values: %v", f.name, f.code, codes))
		}
	}
	for i, o := range cfg.Conversation.Objects {
		if o == "" {
			errs = append(errs, fmt.Errorf("conversation.objects[%d] is empty", i))
		}
	}

	// Suggestion
	if cfg.Suggestion.Delay < 0 {
		errs = append(errs, fmt.Errorf("suggestion.delay %s must be positive", cfg.Suggestion.Delay))
	}

	// Recording
	if cfg.Recording.Source != "" && !cfg.Recording.Source.IsValid() {
		errs = append(errs, fmt.Errorf("recording.source %q is invalid; valid values: ui, file", cfg.Recording.Source))
	}
	if cfg.Recording.Source == SourceFile && cfg.Recording.File == "" {
		errs = append(errs, errors.New("recording.file is required when source is file"))
	}
	if cfg.Recording.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("recording.max_duration_seconds %d must be positive", cfg.Recording.MaxDurationSeconds))
	}
	if cfg.Recording.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d must be positive", cfg.Recording.SampleRate))
	}
	if _, err := audio.ParseScalingMode(cfg.Recording.SampleScaling); err != nil {
		errs = append(errs, fmt.Errorf("recording.sample_scaling: %w", err))
	}

	// UI
	if cfg.UI.PlaybackCodec != "" && !cfg.UI.PlaybackCodec.IsValid() {
		errs = append(errs, fmt.Errorf("ui.playback_codec %q is invalid; valid values: wav, opus", cfg.UI.PlaybackCodec))
	}
	if b := cfg.UI.OpusBitrate; b != 0 && (b < 6000 || b > 510000) {
		errs = append(errs, fmt.Errorf("ui.opus_bitrate %d is out of range [6000, 510000]", b))
	}

	return errors.Join(errs...)
}

// CatalogLanguages converts the configured language list for
// [conversation.NewCatalog]. It returns nil when none are configured.
func (c ConversationConfig) CatalogLanguages() []conversation.Language {
	if len(c.Languages) == 0 {
		return nil
	}
	out := make([]conversation.Language, len(c.Languages))
	for i, l := range c.Languages {
		out[i] = conversation.Language{Name: l.Name, Code: l.Code}
	}
	return out
}

// ScalingMode returns the parsed sample scaling. Call after [Validate].
func (r RecordingConfig) ScalingMode() audio.ScalingMode {
	m, _ := audio.ParseScalingMode(r.SampleScaling)
	return m
}
