// Package mock provides an in-memory implementation of [capture.Driver] for
// use in unit tests.
//
// The mock is safe for concurrent use. It records every method call so that
// tests can assert on call counts and arguments, and it exposes exported
// fields that the test sets to control return values.
//
// Typical usage:
//
//	drv := &mock.Driver{
//	    Devices:  []string{"mic-0"},
//	    Position: 32000, // two seconds at 16 kHz
//	}
//	sess := recording.New(drv)
package mock

import (
	"context"
	"sync"

	"github.com/samvad-xr/samvad/pkg/audio/capture"
)

// StartCall records the arguments of a single [Driver.StartCapture] invocation.
type StartCall struct {
	DeviceID           string
	MaxDurationSeconds int
	SampleRate         int
}

// Driver is a mock implementation of [capture.Driver].
// Set the exported fields before use; inspect the Call* fields after.
type Driver struct {
	mu sync.Mutex

	// Devices is returned by ListDevices.
	Devices []string

	// ListError is returned by ListDevices.
	ListError error

	// StartError is returned by StartCapture.
	StartError error

	// Position is returned by ReadPosition.
	Position int

	// PositionError is returned by ReadPosition.
	PositionError error

	// Fill is the value every buffer sample is set to. When Buffer is nil,
	// StopCapture returns a buffer sized for the max duration filled with Fill.
	Fill float32

	// Buffer, when non-nil, is returned by StopCapture instead of a generated one.
	Buffer []float32

	// StopError is returned by StopCapture. The handle is released regardless.
	StopError error

	// StartCalls records all StartCapture invocations.
	StartCalls []StartCall

	// CallCountReadPosition records how many times ReadPosition was called.
	CallCountReadPosition int

	// CallCountStop records how many times StopCapture was called.
	CallCountStop int

	next   capture.Handle
	active map[capture.Handle]StartCall
}

// ListDevices implements [capture.Driver].
func (d *Driver) ListDevices(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Devices, d.ListError
}

// StartCapture implements [capture.Driver].
func (d *Driver) StartCapture(deviceID string, maxDurationSeconds, sampleRate int) (capture.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	call := StartCall{DeviceID: deviceID, MaxDurationSeconds: maxDurationSeconds, SampleRate: sampleRate}
	d.StartCalls = append(d.StartCalls, call)
	if d.StartError != nil {
		return 0, d.StartError
	}
	if d.active == nil {
		d.active = make(map[capture.Handle]StartCall)
	}
	d.next++
	d.active[d.next] = call
	return d.next, nil
}

// ReadPosition implements [capture.Driver].
func (d *Driver) ReadPosition(h capture.Handle) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountReadPosition++
	if _, ok := d.active[h]; !ok {
		return 0, capture.ErrUnknownHandle
	}
	return d.Position, d.PositionError
}

// StopCapture implements [capture.Driver].
func (d *Driver) StopCapture(h capture.Handle) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountStop++
	call, ok := d.active[h]
	if !ok {
		return nil, capture.ErrUnknownHandle
	}
	delete(d.active, h)
	if d.StopError != nil {
		return nil, d.StopError
	}
	if d.Buffer != nil {
		return d.Buffer, nil
	}
	buf := make([]float32, call.MaxDurationSeconds*call.SampleRate)
	for i := range buf {
		buf[i] = d.Fill
	}
	return buf, nil
}

// Active reports how many captures are currently open. Tests use it to assert
// that the device was released.
func (d *Driver) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// SetDevices replaces Devices while other goroutines may be using the driver.
func (d *Driver) SetDevices(devices []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Devices = devices
}
