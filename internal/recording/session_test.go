package recording_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvad-xr/samvad/internal/recording"
	"github.com/samvad-xr/samvad/pkg/audio"
	"github.com/samvad-xr/samvad/pkg/audio/capture/mock"
)

func TestSession_StopFromIdle(t *testing.T) {
	t.Parallel()

	s := recording.New(&mock.Driver{Devices: []string{"mic"}})
	_, err := s.Stop()

	var ise *recording.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("Stop from idle err = %v, want *InvalidStateError", err)
	}
	if ise.Op != "stop" || ise.State != recording.StateIdle {
		t.Errorf("InvalidStateError = %+v", ise)
	}
	if err := s.Cancel(); !errors.As(err, &ise) {
		t.Errorf("Cancel from idle err = %v, want *InvalidStateError", err)
	}
}

func TestSession_StartCancel(t *testing.T) {
	t.Parallel()

	drv := &mock.Driver{Devices: []string{"mic-0", "mic-1"}, Position: 8000}
	s := recording.New(drv)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != recording.StateRecording {
		t.Fatalf("state = %v, want recording", s.State())
	}
	call := drv.StartCalls[0]
	if call.DeviceID != "mic-0" || call.MaxDurationSeconds != 300 || call.SampleRate != 16000 {
		t.Errorf("StartCapture call = %+v, want mic-0/300/16000", call)
	}

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.State() != recording.StateIdle {
		t.Errorf("state after Cancel = %v, want idle", s.State())
	}
	if drv.Active() != 0 {
		t.Errorf("captures still open after Cancel: %d", drv.Active())
	}
	if _, err := s.Stop(); err == nil {
		t.Error("Stop after Cancel succeeded, want InvalidStateError")
	}
}

func TestSession_StopTrimsToPosition(t *testing.T) {
	t.Parallel()

	drv := &mock.Driver{Devices: []string{"mic"}, Position: 32000, Fill: 0.5}
	s := recording.New(drv)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	u, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(u.Samples) != 32000 {
		t.Errorf("samples = %d, want 32000 (not the %d allocated)", len(u.Samples), 300*16000)
	}
	if u.Channels != 1 || u.SampleRate != 16000 {
		t.Errorf("format = %d ch @ %d Hz, want mono 16 kHz", u.Channels, u.SampleRate)
	}
	if u.Duration() != 2*time.Second {
		t.Errorf("Duration() = %v, want 2s", u.Duration())
	}
	if u.Samples[0] != 16383 {
		t.Errorf("sample[0] = %d, want 16383", u.Samples[0])
	}
	if s.State() != recording.StateSending {
		t.Errorf("state after Stop = %v, want sending", s.State())
	}
	if drv.Active() != 0 {
		t.Error("capture not released after Stop")
	}

	var ise *recording.InvalidStateError
	if err := s.Start(context.Background()); !errors.As(err, &ise) || ise.State != recording.StateSending {
		t.Errorf("Start while sending err = %v, want InvalidStateError(sending)", err)
	}
	s.Complete()
	if s.State() != recording.StateIdle {
		t.Errorf("state after Complete = %v, want idle", s.State())
	}
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()

	drv := &mock.Driver{Devices: []string{"mic"}}
	s := recording.New(drv)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var ise *recording.InvalidStateError
	if err := s.Start(context.Background()); !errors.As(err, &ise) {
		t.Fatalf("second Start err = %v, want *InvalidStateError", err)
	}
	if len(drv.StartCalls) != 1 {
		t.Errorf("StartCapture calls = %d, want 1", len(drv.StartCalls))
	}
}

func TestSession_NoDevice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		drv  *mock.Driver
		opts []recording.Option
	}{
		{"empty list", &mock.Driver{}, nil},
		{"configured device missing", &mock.Driver{Devices: []string{"mic"}}, []recording.Option{recording.WithDevice("headset")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := recording.New(tt.drv, tt.opts...)
			if err := s.Start(context.Background()); !errors.Is(err, recording.ErrNoCaptureDevice) {
				t.Errorf("Start err = %v, want ErrNoCaptureDevice", err)
			}
			if s.State() != recording.StateIdle {
				t.Errorf("state = %v, want idle", s.State())
			}
		})
	}
}

func TestSession_DriverFailuresResetToIdle(t *testing.T) {
	t.Parallel()

	errDevice := errors.New("device unplugged")

	t.Run("start", func(t *testing.T) {
		t.Parallel()
		s := recording.New(&mock.Driver{Devices: []string{"mic"}, StartError: errDevice})
		if err := s.Start(context.Background()); !errors.Is(err, errDevice) {
			t.Errorf("Start err = %v, want %v", err, errDevice)
		}
		if s.State() != recording.StateIdle {
			t.Errorf("state = %v, want idle", s.State())
		}
	})

	t.Run("read position", func(t *testing.T) {
		t.Parallel()
		drv := &mock.Driver{Devices: []string{"mic"}, PositionError: errDevice}
		s := recording.New(drv)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := s.Stop(); !errors.Is(err, errDevice) {
			t.Errorf("Stop err = %v, want %v", err, errDevice)
		}
		if s.State() != recording.StateIdle {
			t.Errorf("state = %v, want idle", s.State())
		}
		if drv.CallCountStop != 1 || drv.Active() != 0 {
			t.Errorf("device not released: stops=%d active=%d", drv.CallCountStop, drv.Active())
		}
	})

	t.Run("stop capture", func(t *testing.T) {
		t.Parallel()
		s := recording.New(&mock.Driver{Devices: []string{"mic"}, StopError: errDevice})
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := s.Cancel(); !errors.Is(err, errDevice) {
			t.Errorf("Cancel err = %v, want %v", err, errDevice)
		}
		if s.State() != recording.StateIdle {
			t.Errorf("state = %v, want idle", s.State())
		}
	})
}

func TestSession_Options(t *testing.T) {
	t.Parallel()

	drv := &mock.Driver{Devices: []string{"mic-0", "headset"}, Position: 10, Buffer: make([]float32, 20)}
	drv.Buffer[0] = 1.5
	s := recording.New(drv,
		recording.WithDevice("headset"),
		recording.WithMaxDuration(10),
		recording.WithSampleRate(48000),
		recording.WithScaling(audio.ScaleClamp),
	)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := mock.StartCall{DeviceID: "headset", MaxDurationSeconds: 10, SampleRate: 48000}
	if drv.StartCalls[0] != want {
		t.Errorf("StartCapture call = %+v, want %+v", drv.StartCalls[0], want)
	}
	u, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if u.Samples[0] != 32767 {
		t.Errorf("clamped sample = %d, want 32767", u.Samples[0])
	}
	if len(u.Samples) != 10 || u.SampleRate != 48000 {
		t.Errorf("utterance = %d samples @ %d Hz", len(u.Samples), u.SampleRate)
	}
}
