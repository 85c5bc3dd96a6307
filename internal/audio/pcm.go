package audio

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Broadcast audio is mono 16-bit little-endian PCM at a fixed 24kHz rate.
// Every payload that moves through the system is base64 on the wire and
// raw PCM bytes in memory.
const (
	SampleRate     = 24000
	Channels       = 1
	BytesPerSample = 2
)

// Decode inflates a base64-encoded PCM payload into raw bytes.
func Decode(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty audio payload")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return raw, nil
}

// Encode is the inverse of Decode.
func Encode(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// SampleBuffer holds decoded audio as normalized float samples in [-1, 1],
// ready for scheduling on an output device.
type SampleBuffer struct {
	Data       []float32
	SampleRate int
	Channels   int
}

// ToSampleBuffer reinterprets raw bytes as signed 16-bit little-endian
// samples and normalizes each to [-1, 1] by dividing by 32768.
func ToSampleBuffer(raw []byte, sampleRate, channels int) (*SampleBuffer, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty PCM data")
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}

	data := make([]float32, len(raw)/2)
	for i := range data {
		// Little-endian 16-bit signed integer
		s := int16(raw[i*2]) | int16(raw[i*2+1])<<8
		data[i] = float32(s) / 32768.0
	}

	return &SampleBuffer{
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// Duration returns the playback length of the buffer.
func (b *SampleBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Data) / b.Channels
	return time.Duration(float64(frames) / float64(b.SampleRate) * float64(time.Second))
}

// PCMBytes converts the normalized samples back to 16-bit little-endian
// PCM, clipping anything outside [-1, 1].
func (b *SampleBuffer) PCMBytes() []byte {
	out := make([]byte, len(b.Data)*2)
	for i, f := range b.Data {
		v := int32(f * 32768.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		s := int16(v)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// NumFrames returns the number of per-channel sample frames in the buffer.
func (b *SampleBuffer) NumFrames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}
