// Package opus compresses reply audio for the headset UI.
//
// Reply WAVs from the backend are several hundred kilobytes; streaming them
// to the UI as Opus packets cuts that by an order of magnitude. Utterances are
// resampled to 48 kHz and cut into 20 ms frames; the last frame is padded
// with silence and [Stream.Frames] records the true length so the player can
// trim it back.
package opus

import (
	"fmt"
	"log/slog"

	"layeh.com/gopus"

	"github.com/samvad-xr/samvad/pkg/audio"
)

// Opus runs at 48 kHz with 20 ms frames here.
const (
	SampleRate  = 48000
	FrameMillis = 20
	// FrameSize is the number of samples per channel in one frame.
	FrameSize = SampleRate * FrameMillis / 1000 // 960

	// maxPacketBytes is the recommended upper bound for one Opus packet.
	maxPacketBytes = 4000
)

// DefaultBitrate is the encoder bitrate in bits per second, ample for speech.
const DefaultBitrate = 32000

// Stream is an encoded utterance.
type Stream struct {
	SampleRate int      `json:"sampleRate"`
	Channels   int      `json:"channels"`
	Frames     int      `json:"frames"`
	Packets    [][]byte `json:"packets"`
}

// Encoder compresses utterances at a fixed bitrate. It keeps one format
// converter per channel layout for its lifetime. Safe for concurrent use.
type Encoder struct {
	bitrate int
	mono    audio.FormatConverter
	stereo  audio.FormatConverter
}

// EncoderOption configures an [Encoder].
type EncoderOption func(*Encoder)

// WithLogger sets the logger that receives format mismatch warnings.
func WithLogger(log *slog.Logger) EncoderOption {
	return func(e *Encoder) {
		e.mono.Logger = log
		e.stereo.Logger = log
	}
}

// NewEncoder returns an encoder. bitrate <= 0 selects [DefaultBitrate].
func NewEncoder(bitrate int, opts ...EncoderOption) *Encoder {
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}
	e := &Encoder{
		bitrate: bitrate,
		mono:    audio.FormatConverter{Target: audio.Format{SampleRate: SampleRate, Channels: 1}},
		stereo:  audio.FormatConverter{Target: audio.Format{SampleRate: SampleRate, Channels: 2}},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Bitrate returns the encoder bitrate in bits per second.
func (e *Encoder) Bitrate() int { return e.bitrate }

// Encode resamples u to 48 kHz and encodes it. u must have one or two
// channels.
func (e *Encoder) Encode(u audio.Utterance) (Stream, error) {
	if err := u.Validate(); err != nil {
		return Stream{}, fmt.Errorf("opus: %w", err)
	}
	var pcm audio.Utterance
	switch u.Channels {
	case 1:
		pcm = e.mono.Convert(u)
	case 2:
		pcm = e.stereo.Convert(u)
	default:
		return Stream{}, fmt.Errorf("opus: %d channels not supported", u.Channels)
	}

	enc, err := gopus.NewEncoder(SampleRate, pcm.Channels, gopus.Voip)
	if err != nil {
		return Stream{}, fmt.Errorf("opus: create encoder: %w", err)
	}
	enc.SetBitrate(e.bitrate)

	frames := pcm.Frames()
	s := Stream{SampleRate: SampleRate, Channels: pcm.Channels, Frames: frames}
	step := FrameSize * pcm.Channels
	frame := make([]int16, step)
	for off := 0; off < len(pcm.Samples); off += step {
		n := copy(frame, pcm.Samples[off:])
		clear(frame[n:])
		packet, err := enc.Encode(frame, FrameSize, maxPacketBytes)
		if err != nil {
			return Stream{}, fmt.Errorf("opus: encode frame %d: %w", off/step, err)
		}
		s.Packets = append(s.Packets, packet)
	}
	return s, nil
}
