package audio

import "math"

// LevelMeterConfig holds configuration for the playback analysis tap.
type LevelMeterConfig struct {
	FrameSize int // samples per analysis frame (typically 480 for 24kHz = 20ms)
}

// DefaultLevelMeterConfig returns a default analysis configuration.
func DefaultLevelMeterConfig() *LevelMeterConfig {
	return &LevelMeterConfig{
		FrameSize: 480, // 20ms at 24kHz
	}
}

// LevelMeter is the analysis tap in the playback pipeline. It reduces a
// decoded sample buffer to per-frame RMS levels for listener visualizers.
type LevelMeter struct {
	config *LevelMeterConfig
	peak   float64
}

// NewLevelMeter creates a new level meter.
func NewLevelMeter(config *LevelMeterConfig) *LevelMeter {
	if config == nil {
		config = DefaultLevelMeterConfig()
	}
	if config.FrameSize <= 0 {
		config.FrameSize = DefaultLevelMeterConfig().FrameSize
	}
	return &LevelMeter{config: config}
}

// Levels computes the RMS level of each analysis frame in the buffer.
// Levels are in [0, 1]; a trailing partial frame is included.
func (m *LevelMeter) Levels(buf *SampleBuffer) []float64 {
	if buf == nil || len(buf.Data) == 0 {
		return nil
	}

	size := m.config.FrameSize
	levels := make([]float64, 0, (len(buf.Data)+size-1)/size)
	for start := 0; start < len(buf.Data); start += size {
		end := start + size
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		rms := RMS(buf.Data[start:end])
		if rms > m.peak {
			m.peak = rms
		}
		levels = append(levels, rms)
	}
	return levels
}

// Peak returns the highest frame level observed so far.
func (m *LevelMeter) Peak() float64 {
	return m.peak
}

// Reset clears the peak tracker.
func (m *LevelMeter) Reset() {
	m.peak = 0
}

// RMS calculates the root mean square of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// IsSilence reports whether the samples fall below the given RMS threshold.
func IsSilence(samples []float32, threshold float64) bool {
	return RMS(samples) < threshold
}
