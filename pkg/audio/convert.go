package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Format returns the format of u.
func (u Utterance) Format() Format {
	return Format{SampleRate: u.SampleRate, Channels: u.Channels}
}

// FormatConverter converts utterances to a target format, e.g. 16 kHz mono
// replies to the 48 kHz stereo layout an Opus playback path expects. It logs
// a warning on the first format mismatch only, so keep one converter per
// sink or driver for its lifetime. Safe for concurrent use.
type FormatConverter struct {
	Target Format

	// Logger receives the mismatch warning. Nil means [slog.Default].
	Logger *slog.Logger

	warnedMismatch sync.Once
}

// Convert returns u in the target format. If u already matches, it is
// returned unchanged (zero allocation). Only mono and stereo sources are
// converted; other layouts are resampled but keep their channel count.
// Conversion order: resample first, then channel convert.
func (c *FormatConverter) Convert(u Utterance) Utterance {
	if u.SampleRate == c.Target.SampleRate && u.Channels == c.Target.Channels {
		return u
	}

	c.warnedMismatch.Do(func() {
		log := c.Logger
		if log == nil {
			log = slog.Default()
		}
		log.Warn("audio format mismatch: converting",
			"from", formatString(u.SampleRate, u.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := u.Samples
	channels := u.Channels

	if u.SampleRate != c.Target.SampleRate {
		pcm = Resample16(pcm, channels, u.SampleRate, c.Target.SampleRate)
	}

	switch {
	case channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
		channels = 2
	case channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
		channels = 1
	}

	return Utterance{Samples: pcm, Channels: channels, SampleRate: c.Target.SampleRate}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []int16) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// StereoToMono averages L+R per stereo frame. Uses int32 arithmetic to
// prevent overflow.
func StereoToMono(pcm []int16) []int16 {
	frames := len(pcm) / 2
	out := make([]int16, frames)
	for i := range frames {
		avg := (int32(pcm[i*2]) + int32(pcm[i*2+1])) / 2
		out[i] = int16(avg)
	}
	return out
}

// Resample16 resamples interleaved 16-bit PCM with the given channel count
// from srcRate to dstRate using linear interpolation per channel. If the
// rates are equal or invalid, pcm is returned unchanged.
func Resample16(pcm []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < channels {
		return pcm
	}
	srcFrames := len(pcm) / channels
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for ch := range channels {
			s0 := float64(pcm[srcIdx*channels+ch])
			s1 := float64(pcm[next*channels+ch])
			out[i*channels+ch] = int16(s0*(1-frac) + s1*frac)
		}
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
