package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samvad-xr/samvad/pkg/audio"
)

// FileDriver replays a WAV file as if it were a microphone. Capture position
// advances with wall-clock time from StartCapture and stops at the end of the
// file or the max duration, whichever comes first. The file is resampled to
// the requested rate and down-mixed to mono. It exposes a single device whose
// id is the file's base name.
type FileDriver struct {
	path string
	now  func() time.Time
	log  *slog.Logger

	mu     sync.Mutex
	next   Handle
	active map[Handle]*fileCapture
	// convs holds one converter per requested sample rate.
	convs map[int]*audio.FormatConverter
}

type fileCapture struct {
	started time.Time
	samples []float32
	maxLen  int
	rate    int
}

// FileOption configures a [FileDriver].
type FileOption func(*FileDriver)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) FileOption {
	return func(d *FileDriver) {
		d.now = now
	}
}

// WithLogger sets the logger for format mismatch warnings.
func WithLogger(log *slog.Logger) FileOption {
	return func(d *FileDriver) {
		d.log = log
	}
}

// NewFileDriver creates a driver replaying the WAV file at path. The file is
// read on every StartCapture so it may be swapped between turns.
func NewFileDriver(path string, opts ...FileOption) (*FileDriver, error) {
	if path == "" {
		return nil, fmt.Errorf("capture: file driver requires a path")
	}
	d := &FileDriver{
		path:   path,
		now:    time.Now,
		active: make(map[Handle]*fileCapture),
		convs:  make(map[int]*audio.FormatConverter),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ListDevices implements [Driver]. The device is listed only while the file
// exists.
func (d *FileDriver) ListDevices(_ context.Context) ([]string, error) {
	if _, err := os.Stat(d.path); err != nil {
		return nil, nil
	}
	return []string{filepath.Base(d.path)}, nil
}

// StartCapture implements [Driver].
func (d *FileDriver) StartCapture(_ string, maxDurationSeconds, sampleRate int) (Handle, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return 0, fmt.Errorf("capture: read %q: %w", d.path, err)
	}
	u, err := audio.DecodeWAV(data)
	if err != nil {
		return 0, fmt.Errorf("capture: decode %q: %w", d.path, err)
	}
	mono := d.converter(sampleRate).Convert(u)

	maxLen := maxDurationSeconds * sampleRate
	buf := make([]float32, maxLen)
	copy(buf, mono.Float32())
	recorded := min(len(mono.Samples), maxLen)

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.active) > 0 {
		return 0, ErrDeviceBusy
	}
	d.next++
	d.active[d.next] = &fileCapture{
		started: d.now(),
		samples: buf,
		maxLen:  recorded,
		rate:    sampleRate,
	}
	return d.next, nil
}

func (d *FileDriver) converter(sampleRate int) *audio.FormatConverter {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.convs[sampleRate]
	if !ok {
		conv = &audio.FormatConverter{
			Target: audio.Format{SampleRate: sampleRate, Channels: 1},
			Logger: d.log,
		}
		d.convs[sampleRate] = conv
	}
	return conv
}

// ReadPosition implements [Driver].
func (d *FileDriver) ReadPosition(h Handle) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.active[h]
	if !ok {
		return 0, ErrUnknownHandle
	}
	elapsed := d.now().Sub(c.started)
	pos := int(elapsed * time.Duration(c.rate) / time.Second)
	return min(max(pos, 0), c.maxLen), nil
}

// StopCapture implements [Driver].
func (d *FileDriver) StopCapture(h Handle) ([]float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.active[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	delete(d.active, h)
	return c.samples, nil
}
