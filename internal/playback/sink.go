package playback

import (
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
)

// Sink is the output endpoint of the audio graph: decoded sample buffers
// go in, sound comes out at the scheduled time. One sink per listening
// session; implementations are constructed lazily because real output
// devices need an activation gesture before they produce sound.
type Sink interface {
	// ScheduleAt plays buf starting at start and invokes done when the
	// buffer finishes. Scheduling must not block.
	ScheduleAt(buf *audio.SampleBuffer, start time.Time, done func()) error

	// Stop halts any in-flight source immediately.
	Stop()

	// Close releases the output device.
	Close() error
}

// SinkFactory constructs the session's sink on first use.
type SinkFactory func() (Sink, error)
