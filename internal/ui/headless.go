package ui

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samvad-xr/samvad/pkg/audio"
)

// LogSink implements every turn sink by logging, for runs without a headset.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// SetText implements [turn.TranscriptSink] by logging the transcript at Info.
func (s LogSink) SetText(text string) { s.log().Info("transcript", "text", text) }

// Show implements [turn.SuggestionSink] by logging the suggestion at Info.
func (s LogSink) Show(text string) { s.log().Info("suggestion", "text", text) }

// Hide implements [turn.SuggestionSink]. Logged at Debug.
func (s LogSink) Hide() { s.log().Debug("suggestion hidden") }

// SetValue implements [turn.HappinessSink] by logging the happiness fraction.
func (s LogSink) SetValue(v float64) { s.log().Info("happiness", "value", v) }

// SetStatus implements [turn.StatusSink]. Button labels change often, so they
// are logged at Debug.
func (s LogSink) SetStatus(text string) { s.log().Debug("status", "text", text) }

// SetContext implements [turn.ContextSink] by logging the selection line.
func (s LogSink) SetContext(text string) { s.log().Info("context", "text", text) }

// Play implements [turn.PlaybackSink] by logging the reply's length; no audio
// is played.
func (s LogSink) Play(u audio.Utterance) {
	s.log().Info("reply audio", "duration", u.Duration(), "sample_rate", u.SampleRate)
}

// ReplyDir writes each reply utterance to a numbered WAV file in a
// directory. It implements [turn.PlaybackSink].
type ReplyDir struct {
	dir string

	mu  sync.Mutex
	seq int
	now func() time.Time
}

// NewReplyDir creates dir if needed.
func NewReplyDir(dir string) (*ReplyDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ui: create reply dir: %w", err)
	}
	return &ReplyDir{dir: dir, now: time.Now}, nil
}

// Play writes u in the background.
func (r *ReplyDir) Play(u audio.Utterance) {
	r.mu.Lock()
	r.seq++
	name := fmt.Sprintf("reply-%s-%03d.wav", r.now().UTC().Format("20060102T150405"), r.seq)
	r.mu.Unlock()

	go func() {
		if _, err := r.write(name, u); err != nil {
			slog.Warn("ui: write reply audio", "err", err)
		}
	}()
}

func (r *ReplyDir) write(name string, u audio.Utterance) (string, error) {
	data, err := audio.EncodeWAV(u)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("ui: write %s: %w", path, err)
	}
	return path, nil
}
