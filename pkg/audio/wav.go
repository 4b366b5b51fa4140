package audio

import (
	"encoding/binary"
	"fmt"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE header that
	// precedes the sample data.
	WAVHeaderSize = 44

	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
	formatPCM      = 1
)

// MalformedAudioError is returned by [DecodeWAV] when the container cannot be
// interpreted as 16-bit PCM.
type MalformedAudioError struct {
	// Reason describes what was wrong with the buffer.
	Reason string
}

// Error implements error.
func (e *MalformedAudioError) Error() string {
	return "audio: malformed wav: " + e.Reason
}

// EncodeWAV wraps u in a standard RIFF/WAVE container: a 44-byte header
// declaring linear PCM, the channel count, sample rate, byte rate, block
// alignment and 16 bits per sample, followed by the little-endian samples.
func EncodeWAV(u Utterance) ([]byte, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	byteRate := u.SampleRate * u.Channels * bytesPerSample
	blockAlign := u.Channels * bytesPerSample
	dataSize := len(u.Samples) * bytesPerSample

	buf := make([]byte, WAVHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)-8))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], formatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(u.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(u.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	pcm := buf[WAVHeaderSize:]
	for i, s := range u.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return buf, nil
}

// DecodeWAV is the inverse of [EncodeWAV]. It reads the channel count and
// sample rate from the header and treats everything after byte 44 as sample
// data; a trailing partial frame is dropped. It returns a
// [*MalformedAudioError] when data is shorter than the header or declares
// zero channels.
func DecodeWAV(data []byte) (Utterance, error) {
	if len(data) < WAVHeaderSize {
		return Utterance{}, &MalformedAudioError{
			Reason: fmt.Sprintf("need at least %d bytes, got %d", WAVHeaderSize, len(data)),
		}
	}

	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	if channels == 0 {
		return Utterance{}, &MalformedAudioError{Reason: "header declares zero channels"}
	}
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))

	frames := (len(data) - WAVHeaderSize) / bytesPerSample / channels
	samples := make([]int16, frames*channels)
	pcm := data[WAVHeaderSize:]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	return Utterance{
		Samples:    samples,
		Channels:   channels,
		SampleRate: sampleRate,
	}, nil
}
