// Package capture defines the microphone boundary used by the recording
// session. A [Driver] hands out capture handles for a device, reports how
// many sample frames have been captured so far and returns the raw capture
// buffer when capture stops.
//
// Implementations are environment specific: this package ships a WAV-file
// replay driver ([FileDriver]) for headless runs, the UI bridge provides a
// driver fed by the headset over a websocket, and capture/mock provides a
// scriptable driver for tests.
package capture

import (
	"context"
	"errors"
)

// ErrUnknownHandle is returned when a handle was never issued by the driver
// or has already been stopped.
var ErrUnknownHandle = errors.New("capture: unknown or stopped handle")

// ErrDeviceBusy is returned by StartCapture when the device already has an
// active capture.
var ErrDeviceBusy = errors.New("capture: device busy")

// Handle identifies one active capture on a [Driver].
type Handle uint64

// Driver is the capture device boundary.
//
// Implementations must be safe for concurrent use.
type Driver interface {
	// ListDevices returns the ids of the currently available input devices.
	// An empty list means no microphone is present.
	ListDevices(ctx context.Context) ([]string, error)

	// StartCapture begins capturing mono audio from deviceID at sampleRate Hz.
	// The driver reserves a buffer for at most maxDurationSeconds of audio.
	StartCapture(deviceID string, maxDurationSeconds, sampleRate int) (Handle, error)

	// ReadPosition returns the number of sample frames captured so far.
	ReadPosition(h Handle) (int, error)

	// StopCapture ends the capture, releases the device and returns the raw
	// capture buffer as normalised float samples. The buffer may be longer
	// than the captured audio; callers trim it using ReadPosition.
	StopCapture(h Handle) ([]float32, error)
}
