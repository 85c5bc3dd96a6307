package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/rs/zerolog"
)

// State is the scheduler's playback state.
type State int

const (
	// Idle means nothing is scheduled past the device clock.
	Idle State = iota
	// Playing means at least one buffer is scheduled or sounding.
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// CompletionEpsilon absorbs device callback jitter when deciding whether
// the timeline has drained.
const CompletionEpsilon = 50 * time.Millisecond

// Scheduler owns one session's audio pipeline (decode, analysis tap,
// output sink) and schedules each incoming broadcast to start exactly when
// the previous one ends: never overlapping, never inserting silence beyond
// scheduling jitter. The nextEnd bookkeeping is the ordering guarantee;
// device completion callbacks only confirm it.
type Scheduler struct {
	clock   Clock
	factory SinkFactory
	meter   *audio.LevelMeter
	logger  zerolog.Logger

	mu      sync.Mutex
	sink    Sink
	state   State
	nextEnd time.Time
	lastErr error
}

// NewScheduler creates a scheduler for one listening session. The sink is
// not constructed until the first enqueue.
func NewScheduler(clock Clock, factory SinkFactory, logger zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = DeviceClock{}
	}
	return &Scheduler{
		clock:   clock,
		factory: factory,
		meter:   audio.NewLevelMeter(nil),
		logger:  logger.With().Str("component", "playback").Logger(),
	}
}

// Enqueue decodes the broadcast's audio and schedules it back-to-back
// behind whatever is already playing. Decode and device failures drop the
// item and leave the timeline untouched, so the next enqueue continues
// from the same boundary.
func (s *Scheduler) Enqueue(b broadcast.Broadcast) {
	if !b.HasAudio() {
		s.drop(b.ID, "no_audio", fmt.Errorf("broadcast %s has no audio payload", b.ID))
		return
	}

	raw, err := audio.Decode(b.AudioData)
	if err != nil {
		s.drop(b.ID, "decode", err)
		return
	}
	buf, err := audio.ToSampleBuffer(raw, audio.SampleRate, audio.Channels)
	if err != nil {
		s.drop(b.ID, "decode", err)
		return
	}

	// Analysis tap: feed the level meter before the buffer reaches the sink.
	s.meter.Levels(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil {
		sink, err := s.factory()
		if err != nil {
			s.lastErr = err
			s.logger.Error().Err(err).Str("broadcast_id", b.ID).Msg("Failed to open audio sink, dropping item")
			observability.RecordPlaybackDropped("device")
			return
		}
		s.sink = sink
	}

	// Gapless invariant: start no earlier than the device clock AND no
	// earlier than the previous item's scheduled end.
	now := s.clock.Now()
	start := now
	if s.nextEnd.After(now) {
		start = s.nextEnd
	}
	end := start.Add(buf.Duration())

	if err := s.sink.ScheduleAt(buf, start, func() { s.onComplete() }); err != nil {
		// nextEnd is not advanced: the timeline continues from the same
		// boundary as if this item never existed.
		s.lastErr = err
		s.logger.Error().Err(err).Str("broadcast_id", b.ID).Msg("Failed to schedule buffer, dropping item")
		observability.RecordPlaybackDropped("device")
		return
	}

	s.nextEnd = end
	s.state = Playing
	s.lastErr = nil
	observability.RecordPlaybackScheduled()
	s.logger.Debug().
		Str("broadcast_id", b.ID).
		Time("start", start).
		Dur("duration", buf.Duration()).
		Msg("Broadcast scheduled")
}

// onComplete runs when a scheduled buffer finishes. The scheduler goes
// idle only when the device clock has reached the scheduled timeline end;
// otherwise another item is queued behind and playback continues.
func (s *Scheduler) onComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Now().Before(s.nextEnd.Add(-CompletionEpsilon)) {
		s.state = Idle
	}
}

func (s *Scheduler) drop(id, reason string, err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.logger.Warn().Err(err).Str("broadcast_id", id).Msg("Dropping broadcast from playback")
	observability.RecordPlaybackDropped(reason)
}

// State returns the current playback state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextEnd returns the scheduled end of the current timeline.
func (s *Scheduler) NextEnd() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextEnd
}

// Err returns the error indicator from the most recent failed operation,
// or nil after a successful schedule.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Levels exposes the analysis tap.
func (s *Scheduler) Levels() *audio.LevelMeter {
	return s.meter
}

// Close releases the sink if one was constructed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sink == nil {
		return nil
	}
	err := s.sink.Close()
	s.sink = nil
	return err
}
