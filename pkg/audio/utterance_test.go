package audio_test

import (
	"testing"
	"time"

	"github.com/samvad-xr/samvad/pkg/audio"
)

func TestFromFloat32_Truncates(t *testing.T) {
	u := audio.FromFloat32([]float32{0.5, -0.5, 0.99999}, 1, 16000, audio.ScaleWrap)
	// 0.5*32767 = 16383.5 truncates toward zero.
	equalSamples(t, u.Samples, []int16{16383, -16383, 32766})
}

func TestFromFloat32_OutOfRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mode audio.ScalingMode
		in   float32
		want int16
	}{
		{audio.ScaleClamp, 1.5, 32767},
		{audio.ScaleClamp, -1.5, -32768},
		// 1.5*32767 = 49150 wraps to 49150-65536.
		{audio.ScaleWrap, 1.5, -16386},
		{audio.ScaleWrap, -1.5, 16386},
	}
	for _, tt := range tests {
		u := audio.FromFloat32([]float32{tt.in}, 1, 16000, tt.mode)
		if u.Samples[0] != tt.want {
			t.Errorf("%s(%v) = %d, want %d", tt.mode, tt.in, u.Samples[0], tt.want)
		}
	}
}

func TestParseScalingMode(t *testing.T) {
	for in, want := range map[string]audio.ScalingMode{"": audio.ScaleWrap, "wrap": audio.ScaleWrap, "clamp": audio.ScaleClamp} {
		got, err := audio.ParseScalingMode(in)
		if err != nil || got != want {
			t.Errorf("ParseScalingMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := audio.ParseScalingMode("dither"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestUtterance_Duration(t *testing.T) {
	u := audio.Utterance{Samples: make([]int16, 32000), Channels: 1, SampleRate: 16000}
	if got := u.Duration(); got != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", got)
	}
	if got := u.Frames(); got != 32000 {
		t.Errorf("Frames = %d, want 32000", got)
	}
}
