// Package config provides the configuration schema, loader and file watcher
// for the samvad voice client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CaptureSource selects where microphone audio comes from.
type CaptureSource string

const (
	// SourceUI captures PCM streamed by the headset UI over its websocket.
	SourceUI CaptureSource = "ui"

	// SourceFile replays a WAV file in wall-clock time.
	SourceFile CaptureSource = "file"
)

// IsValid reports whether s is a recognised capture source.
func (s CaptureSource) IsValid() bool {
	return s == SourceUI || s == SourceFile
}

// PlaybackCodec selects how reply audio is delivered to the UI.
type PlaybackCodec string

const (
	CodecWAV  PlaybackCodec = "wav"
	CodecOpus PlaybackCodec = "opus"
)

// IsValid reports whether c is a recognised playback codec.
func (c PlaybackCodec) IsValid() bool {
	return c == CodecWAV || c == CodecOpus
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Backend      BackendConfig      `yaml:"backend"`
	Conversation ConversationConfig `yaml:"conversation"`
	Suggestion   SuggestionConfig   `yaml:"suggestion"`
	Recording    RecordingConfig    `yaml:"recording"`
	UI           UIConfig           `yaml:"ui"`
}

// ServerConfig holds network and logging settings for the local control
// server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default: ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// TickInterval is how often the suggestion timer and button label are
	// polled. Default: 100ms.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// BackendConfig configures the conversational backend endpoint.
type BackendConfig struct {
	// URL is the absolute http(s) URL turns are POSTed to. Required.
	URL string `yaml:"url"`

	// Timeout bounds one exchange. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are added to every request, e.g. an API gateway key.
	Headers map[string]string `yaml:"headers"`

	// CircuitBreaker stops sending while the backend keeps failing.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig mirrors [resilience.CircuitBreakerConfig].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the
	// breaker. A negative value disables the breaker. Default: 3.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open before a probe.
	// Default: 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ConversationConfig seeds the conversation state and the selectable
// languages and objects.
type ConversationConfig struct {
	// InputLanguage is the code of the language the user speaks. Default: en.
	InputLanguage string `yaml:"input_language"`

	// TargetLanguage is the code of the language the character replies in.
	// Default: hi.
	TargetLanguage string `yaml:"target_language"`

	// Languages replaces the built-in language list when non-empty.
	Languages []LanguageConfig `yaml:"languages"`

	// Objects replaces the built-in list of selectable objects when non-empty.
	Objects []string `yaml:"objects"`
}

// LanguageConfig maps a display name to a language code.
type LanguageConfig struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// SuggestionConfig configures the delayed suggestion reveal.
type SuggestionConfig struct {
	// Delay is the quiet period before a withheld suggestion is shown.
	// Default: 20s.
	Delay time.Duration `yaml:"delay"`
}

// RecordingConfig configures microphone capture.
type RecordingConfig struct {
	// Source selects the capture driver. Default: ui.
	Source CaptureSource `yaml:"source"`

	// File is the WAV file replayed when Source is "file".
	File string `yaml:"file"`

	// Device selects a capture device by id. Empty uses the first device.
	Device string `yaml:"device"`

	// MaxDurationSeconds caps one recording. Default: 300.
	MaxDurationSeconds int `yaml:"max_duration_seconds"`

	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// SampleScaling is "wrap" (default) or "clamp": how out-of-range float
	// amplitudes become 16-bit samples.
	SampleScaling string `yaml:"sample_scaling"`
}

// UIConfig configures the headset websocket bridge.
type UIConfig struct {
	// OriginPatterns lists extra Origin hosts allowed to open the websocket.
	OriginPatterns []string `yaml:"origin_patterns"`

	// PlaybackCodec is "wav" (default) or "opus".
	PlaybackCodec PlaybackCodec `yaml:"playback_codec"`

	// OpusBitrate is the reply bitrate when PlaybackCodec is "opus".
	// Default: 32000.
	OpusBitrate int `yaml:"opus_bitrate"`

	// ReplyDir, when set, additionally stores each reply as a WAV file.
	ReplyDir string `yaml:"reply_dir"`

	// LogEvents logs every UI update, for runs without a headset.
	LogEvents bool `yaml:"log_events"`
}
