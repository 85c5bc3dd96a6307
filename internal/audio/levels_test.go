package audio

import (
	"math"
	"testing"
)

func TestLevelMeter_Levels(t *testing.T) {
	meter := NewLevelMeter(&LevelMeterConfig{FrameSize: 4})

	buf := &SampleBuffer{
		Data:       []float32{0.5, 0.5, 0.5, 0.5, 0, 0, 0, 0, 1, 1}, // trailing partial frame
		SampleRate: SampleRate,
		Channels:   Channels,
	}

	levels := meter.Levels(buf)
	if len(levels) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(levels))
	}
	if math.Abs(levels[0]-0.5) > 1e-9 {
		t.Errorf("Expected frame 0 RMS 0.5, got %f", levels[0])
	}
	if levels[1] != 0 {
		t.Errorf("Expected frame 1 RMS 0, got %f", levels[1])
	}
	if math.Abs(levels[2]-1.0) > 1e-9 {
		t.Errorf("Expected frame 2 RMS 1.0, got %f", levels[2])
	}
	if math.Abs(meter.Peak()-1.0) > 1e-9 {
		t.Errorf("Expected peak 1.0, got %f", meter.Peak())
	}

	meter.Reset()
	if meter.Peak() != 0 {
		t.Errorf("Expected peak 0 after reset, got %f", meter.Peak())
	}
}

func TestLevelMeter_EmptyBuffer(t *testing.T) {
	meter := NewLevelMeter(nil)

	if levels := meter.Levels(nil); levels != nil {
		t.Errorf("Expected nil levels for nil buffer, got %v", levels)
	}
	if levels := meter.Levels(&SampleBuffer{}); levels != nil {
		t.Errorf("Expected nil levels for empty buffer, got %v", levels)
	}
}

func TestRMS(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		expected float64
	}{
		{"silence", []float32{0, 0, 0}, 0},
		{"constant half", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Expected RMS %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestIsSilence(t *testing.T) {
	if !IsSilence([]float32{0.001, -0.001}, 0.01) {
		t.Error("Expected near-zero samples to be silence")
	}
	if IsSilence([]float32{0.5, -0.5}, 0.01) {
		t.Error("Expected loud samples to not be silence")
	}
}
