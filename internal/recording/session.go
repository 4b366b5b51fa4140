// Package recording owns the lifecycle of a single microphone capture.
//
// A [Session] moves Idle → Recording on [Session.Start]. [Session.Stop]
// trims the capture to what was actually recorded and moves to Sending until
// the orchestrator calls [Session.Complete]; [Session.Cancel] discards the
// capture and returns to Idle. The capture device is released on every path
// out of Recording, and any driver failure leaves the session Idle.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/audio/capture"
)

// Capture defaults.
const (
	DefaultMaxDurationSeconds = 300
	DefaultSampleRate         = 16000
)

// ErrNoCaptureDevice is returned by [Session.Start] when the driver lists no
// devices, or the configured device is missing.
var ErrNoCaptureDevice = errors.New("recording: no capture device")

// State is the session's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateSending
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// InvalidStateError reports an operation attempted from the wrong state.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("recording: cannot %s while %s", e.Op, e.State)
}

// Option configures a [Session].
type Option func(*Session)

// WithDevice selects a capture device by id instead of the first listed.
func WithDevice(id string) Option {
	return func(s *Session) { s.deviceID = id }
}

// WithMaxDuration sets the capture buffer length in seconds.
func WithMaxDuration(seconds int) Option {
	return func(s *Session) {
		if seconds > 0 {
			s.maxSeconds = seconds
		}
	}
}

// WithSampleRate sets the capture sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(s *Session) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithScaling selects how captured floats are converted to PCM.
func WithScaling(mode audio.ScalingMode) Option {
	return func(s *Session) { s.scaling = mode }
}

// Session is safe for concurrent use; all transitions hold one mutex, so the
// capture handle has exactly one owner.
type Session struct {
	driver     capture.Driver
	deviceID   string
	maxSeconds int
	sampleRate int
	scaling    audio.ScalingMode

	mu     sync.Mutex
	state  State
	handle capture.Handle
	device string
}

// New creates an idle [Session] over driver.
func New(driver capture.Driver, opts ...Option) *Session {
	s := &Session{
		driver:     driver,
		maxSeconds: DefaultMaxDurationSeconds,
		sampleRate: DefaultSampleRate,
		scaling:    audio.ScaleWrap,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the capture device and begins recording.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return &InvalidStateError{Op: "start", State: s.state}
	}

	devices, err := s.driver.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("recording: list devices: %w", err)
	}
	device, err := s.pickDevice(devices)
	if err != nil {
		return err
	}

	h, err := s.driver.StartCapture(device, s.maxSeconds, s.sampleRate)
	if err != nil {
		return fmt.Errorf("recording: start capture on %q: %w", device, err)
	}
	s.handle = h
	s.device = device
	s.state = StateRecording
	slog.Debug("recording started", "device", device, "max_seconds", s.maxSeconds, "sample_rate", s.sampleRate)
	return nil
}

func (s *Session) pickDevice(devices []string) (string, error) {
	if len(devices) == 0 {
		return "", ErrNoCaptureDevice
	}
	if s.deviceID == "" {
		return devices[0], nil
	}
	for _, d := range devices {
		if d == s.deviceID {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q not among %v", ErrNoCaptureDevice, s.deviceID, devices)
}

// Stop ends the capture and returns the utterance trimmed to the recorded
// length. The session moves to Sending; call [Session.Complete] once the
// utterance has been handled.
func (s *Session) Stop() (audio.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return audio.Utterance{}, &InvalidStateError{Op: "stop", State: s.state}
	}

	pos, posErr := s.driver.ReadPosition(s.handle)
	buf, stopErr := s.release()
	if err := errors.Join(posErr, stopErr); err != nil {
		return audio.Utterance{}, fmt.Errorf("recording: stop capture on %q: %w", s.device, err)
	}

	pos = min(max(pos, 0), len(buf))
	trimmed := make([]float32, pos)
	copy(trimmed, buf[:pos])
	s.state = StateSending

	u := audio.FromFloat32(trimmed, 1, s.sampleRate, s.scaling)
	slog.Debug("recording stopped", "device", s.device, "frames", pos, "duration", u.Duration())
	return u, nil
}

// Cancel ends the capture and discards it.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return &InvalidStateError{Op: "cancel", State: s.state}
	}
	if _, err := s.release(); err != nil {
		return fmt.Errorf("recording: cancel capture on %q: %w", s.device, err)
	}
	slog.Debug("recording cancelled", "device", s.device)
	return nil
}

// Complete returns a Sending session to Idle. It is a no-op in other states.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSending {
		s.state = StateIdle
	}
}

// release stops the capture and leaves the session Idle whatever the driver
// returns. Must be called with s.mu held.
func (s *Session) release() ([]float32, error) {
	buf, err := s.driver.StopCapture(s.handle)
	s.handle = 0
	s.state = StateIdle
	return buf, err
}
