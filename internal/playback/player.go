package playback

import (
	"fmt"
	"sync"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
)

// Player is single-shot playback for auditing a specific archived
// broadcast: it stops any in-flight source immediately and starts the new
// one at the device's current time, with no queueing. Immediacy matters
// more than gaplessness here.
type Player struct {
	clock   Clock
	factory SinkFactory

	mu   sync.Mutex
	sink Sink
}

// NewPlayer creates a single-shot player sharing the session's sink
// factory. The sink is constructed lazily on the first play.
func NewPlayer(clock Clock, factory SinkFactory) *Player {
	if clock == nil {
		clock = DeviceClock{}
	}
	return &Player{clock: clock, factory: factory}
}

// Play replaces whatever is currently sounding with the given broadcast.
func (p *Player) Play(b broadcast.Broadcast) error {
	if !b.HasAudio() {
		return fmt.Errorf("broadcast %s has no audio payload", b.ID)
	}
	raw, err := audio.Decode(b.AudioData)
	if err != nil {
		return fmt.Errorf("failed to decode broadcast %s: %w", b.ID, err)
	}
	buf, err := audio.ToSampleBuffer(raw, audio.SampleRate, audio.Channels)
	if err != nil {
		return fmt.Errorf("failed to decode broadcast %s: %w", b.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil {
		sink, err := p.factory()
		if err != nil {
			return fmt.Errorf("failed to open audio sink: %w", err)
		}
		p.sink = sink
	}

	p.sink.Stop()
	return p.sink.ScheduleAt(buf, p.clock.Now(), nil)
}

// Stop halts playback without releasing the sink.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink != nil {
		p.sink.Stop()
	}
}

// Close releases the sink if one was constructed.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sink == nil {
		return nil
	}
	err := p.sink.Close()
	p.sink = nil
	return err
}
