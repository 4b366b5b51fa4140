// Package audio defines the [Utterance] type exchanged between the capture
// session, the backend client and the playback sinks, together with the WAV
// container codec used on the wire and small PCM format helpers.
//
// Samples are always signed 16-bit PCM, interleaved when Channels > 1.
package audio

import (
	"fmt"
	"math"
	"time"
)

// pcmScale is the factor between normalised float amplitudes and int16 PCM.
const pcmScale = 32767

// Utterance is one captured or synthesised piece of speech.
type Utterance struct {
	// Samples holds interleaved signed 16-bit PCM samples.
	Samples []int16

	// Channels is the number of interleaved channels (1 mono, 2 stereo).
	Channels int

	// SampleRate in Hz (16000 for microphone capture).
	SampleRate int
}

// Validate reports whether u satisfies the utterance invariants: at least one
// channel, a positive sample rate and a sample count that is a whole number
// of frames.
func (u Utterance) Validate() error {
	if u.Channels < 1 {
		return fmt.Errorf("audio: channel count %d must be at least 1", u.Channels)
	}
	if u.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate %d must be positive", u.SampleRate)
	}
	if len(u.Samples)%u.Channels != 0 {
		return fmt.Errorf("audio: %d samples is not a multiple of %d channels", len(u.Samples), u.Channels)
	}
	return nil
}

// Frames returns the number of sample frames (samples per channel).
func (u Utterance) Frames() int {
	if u.Channels <= 0 {
		return 0
	}
	return len(u.Samples) / u.Channels
}

// Duration returns the playback length of u.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(u.Frames()) * time.Second / time.Duration(u.SampleRate)
}

// Float32 returns the samples normalised to [-1, 1] by dividing by 32767.
// -32768 maps slightly below -1.
func (u Utterance) Float32() []float32 {
	out := make([]float32, len(u.Samples))
	for i, s := range u.Samples {
		out[i] = float32(s) / 32767.0
	}
	return out
}

// ScalingMode selects how [FromFloat32] treats amplitudes outside [-1, 1].
type ScalingMode int

const (
	// ScaleWrap truncates x*32767 toward zero and keeps only the low 16 bits,
	// so out-of-range amplitudes wrap around. This matches the byte stream the
	// deployed backend has always received.
	ScaleWrap ScalingMode = iota

	// ScaleClamp truncates x*32767 toward zero and saturates at the int16 range.
	ScaleClamp
)

// String returns the config spelling of the mode.
func (m ScalingMode) String() string {
	switch m {
	case ScaleWrap:
		return "wrap"
	case ScaleClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

// ParseScalingMode parses "wrap" or "clamp". The empty string means wrap.
func ParseScalingMode(s string) (ScalingMode, error) {
	switch s {
	case "", "wrap":
		return ScaleWrap, nil
	case "clamp":
		return ScaleClamp, nil
	}
	return ScaleWrap, fmt.Errorf("audio: unknown sample scaling %q; valid values: wrap, clamp", s)
}

// FromFloat32 builds an Utterance from normalised float samples. No dithering
// is applied. NaN samples become 0.
func FromFloat32(samples []float32, channels, sampleRate int, mode ScalingMode) Utterance {
	out := make([]int16, len(samples))
	for i, f := range samples {
		out[i] = floatToPCM16(f, mode)
	}
	return Utterance{Samples: out, Channels: channels, SampleRate: sampleRate}
}

func floatToPCM16(f float32, mode ScalingMode) int16 {
	v := math.Trunc(float64(f) * pcmScale)
	if math.IsNaN(v) {
		return 0
	}
	if mode == ScaleClamp {
		return int16(max(math.MinInt16, min(math.MaxInt16, v)))
	}
	// Saturate to int32 first so the conversion below stays well defined,
	// then let the int32 -> int16 conversion drop the high bits.
	v = max(math.MinInt32, min(math.MaxInt32, v))
	return int16(int32(v))
}
