package ui

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/samvad-xr/samvad/pkg/audio/capture"
)

// MicrophoneDevice is the device id the headset's microphone is listed as.
const MicrophoneDevice = "ui-headset"

// Microphone is a [capture.Driver] fed by PCM the headset UI streams over its
// websocket: little-endian int16 mono at the rate announced by the bridge
// when capture starts. It is listed as a device only while at least one UI
// client is connected.
type Microphone struct {
	mu      sync.Mutex
	sources int
	next    capture.Handle
	active  capture.Handle
	buf     []float32
	pos     int

	// onStart and onStop are set by the bridge to tell clients to begin or
	// end streaming. They are called without mu held.
	onStart func(sampleRate int)
	onStop  func()
}

var _ capture.Driver = (*Microphone)(nil)

// NewMicrophone returns a microphone with no connected sources.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

func (m *Microphone) attach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources++
}

func (m *Microphone) detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources--
}

// ListDevices implements [capture.Driver].
func (m *Microphone) ListDevices(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sources <= 0 {
		return nil, nil
	}
	return []string{MicrophoneDevice}, nil
}

// StartCapture implements [capture.Driver].
func (m *Microphone) StartCapture(_ string, maxDurationSeconds, sampleRate int) (capture.Handle, error) {
	m.mu.Lock()
	if m.active != 0 {
		m.mu.Unlock()
		return 0, capture.ErrDeviceBusy
	}
	m.next++
	m.active = m.next
	m.buf = make([]float32, maxDurationSeconds*sampleRate)
	m.pos = 0
	h, onStart := m.active, m.onStart
	m.mu.Unlock()

	if onStart != nil {
		onStart(sampleRate)
	}
	return h, nil
}

// Feed appends PCM streamed by a UI client. Data arriving while no capture is
// active, or beyond the buffer, is dropped. A trailing odd byte is ignored.
func (m *Microphone) Feed(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == 0 {
		return
	}
	for i := 0; i+1 < len(pcm) && m.pos < len(m.buf); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		m.buf[m.pos] = float32(s) / 32767.0
		m.pos++
	}
}

// ReadPosition implements [capture.Driver].
func (m *Microphone) ReadPosition(h capture.Handle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == 0 || h != m.active {
		return 0, capture.ErrUnknownHandle
	}
	return m.pos, nil
}

// StopCapture implements [capture.Driver].
func (m *Microphone) StopCapture(h capture.Handle) ([]float32, error) {
	m.mu.Lock()
	if h == 0 || h != m.active {
		m.mu.Unlock()
		return nil, capture.ErrUnknownHandle
	}
	buf := m.buf
	m.active = 0
	m.buf = nil
	m.pos = 0
	onStop := m.onStop
	m.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return buf, nil
}
