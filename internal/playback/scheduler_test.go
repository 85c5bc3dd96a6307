package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type scheduled struct {
	start    time.Time
	duration time.Duration
	done     func()
}

type fakeSink struct {
	mu          sync.Mutex
	items       []scheduled
	scheduleErr error
	stops       int
	closed      bool
}

func (s *fakeSink) ScheduleAt(buf *audio.SampleBuffer, start time.Time, done func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduleErr != nil {
		return s.scheduleErr
	}
	s.items = append(s.items, scheduled{start: start, duration: buf.Duration(), done: done})
	return nil
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) scheduledItems() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduled, len(s.items))
	copy(out, s.items)
	return out
}

// oneSecondBroadcast carries one second of silence at 24kHz.
func oneSecondBroadcast(id string) broadcast.Broadcast {
	return broadcast.Broadcast{
		ID:        id,
		Script:    "test",
		AudioData: audio.Encode(make([]byte, 48000)),
		Mode:      broadcast.ModeCreative,
	}
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeClock, *fakeSink) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	sink := &fakeSink{}
	s := NewScheduler(clock, func() (Sink, error) { return sink, nil }, zerolog.Nop())
	return s, clock, sink
}

func TestScheduler_FirstItemStartsNow(t *testing.T) {
	s, clock, sink := newTestScheduler(t)

	s.Enqueue(oneSecondBroadcast("b-1"))

	items := sink.scheduledItems()
	if len(items) != 1 {
		t.Fatalf("Expected 1 scheduled item, got %d", len(items))
	}
	if !items[0].start.Equal(clock.Now()) {
		t.Errorf("Expected start at device clock %v, got %v", clock.Now(), items[0].start)
	}
	if s.State() != Playing {
		t.Errorf("Expected playing state, got %v", s.State())
	}
}

func TestScheduler_BackToBack(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	base := clock.Now()

	s.Enqueue(oneSecondBroadcast("b-1"))
	s.Enqueue(oneSecondBroadcast("b-2"))
	s.Enqueue(oneSecondBroadcast("b-3"))

	items := sink.scheduledItems()
	if len(items) != 3 {
		t.Fatalf("Expected 3 scheduled items, got %d", len(items))
	}
	// Each item starts exactly when the previous one ends.
	for i, want := range []time.Time{base, base.Add(time.Second), base.Add(2 * time.Second)} {
		if !items[i].start.Equal(want) {
			t.Errorf("Item %d: expected start %v, got %v", i, want, items[i].start)
		}
	}
	if !s.NextEnd().Equal(base.Add(3 * time.Second)) {
		t.Errorf("Expected timeline end at +3s, got %v", s.NextEnd())
	}
}

func TestScheduler_IdleGapRestartsAtNow(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	base := clock.Now()

	s.Enqueue(oneSecondBroadcast("b-1"))

	// The timeline drained a while ago; the next item starts at the device
	// clock, not at the stale boundary.
	clock.set(base.Add(10 * time.Second))
	s.Enqueue(oneSecondBroadcast("b-2"))

	items := sink.scheduledItems()
	if len(items) != 2 {
		t.Fatalf("Expected 2 scheduled items, got %d", len(items))
	}
	if !items[1].start.Equal(base.Add(10 * time.Second)) {
		t.Errorf("Expected restart at device clock, got %v", items[1].start)
	}
}

func TestScheduler_DropDoesNotAdvanceTimeline(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	base := clock.Now()

	s.Enqueue(oneSecondBroadcast("b-1"))

	// The device rejects the second item.
	sink.mu.Lock()
	sink.scheduleErr = errors.New("device rejected buffer")
	sink.mu.Unlock()
	s.Enqueue(oneSecondBroadcast("b-2"))

	if s.Err() == nil {
		t.Error("Expected error indicator after drop")
	}
	if !s.NextEnd().Equal(base.Add(time.Second)) {
		t.Errorf("Expected timeline unchanged after drop, got %v", s.NextEnd())
	}

	// The next successful item continues from the same boundary.
	sink.mu.Lock()
	sink.scheduleErr = nil
	sink.mu.Unlock()
	s.Enqueue(oneSecondBroadcast("b-3"))

	items := sink.scheduledItems()
	if len(items) != 2 {
		t.Fatalf("Expected 2 scheduled items, got %d", len(items))
	}
	if !items[1].start.Equal(base.Add(time.Second)) {
		t.Errorf("Expected continuation from pre-drop boundary, got %v", items[1].start)
	}
	if s.Err() != nil {
		t.Errorf("Expected error indicator cleared after success, got %v", s.Err())
	}
}

func TestScheduler_DropsUnplayableItems(t *testing.T) {
	s, _, sink := newTestScheduler(t)

	s.Enqueue(broadcast.Broadcast{ID: "no-audio", Script: "text only"})
	s.Enqueue(broadcast.Broadcast{ID: "bad-base64", AudioData: "!!!not-base64!!!"})
	s.Enqueue(broadcast.Broadcast{ID: "odd-bytes", AudioData: audio.Encode([]byte{1, 2, 3})})

	if len(sink.scheduledItems()) != 0 {
		t.Errorf("Expected nothing scheduled, got %d items", len(sink.scheduledItems()))
	}
	if s.State() != Idle {
		t.Errorf("Expected idle state, got %v", s.State())
	}
	if s.Err() == nil {
		t.Error("Expected error indicator after drops")
	}
}

func TestScheduler_CompletionGoesIdleOnlyWhenDrained(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	base := clock.Now()

	s.Enqueue(oneSecondBroadcast("b-1"))
	s.Enqueue(oneSecondBroadcast("b-2"))

	items := sink.scheduledItems()

	// First completion fires while the second item is still scheduled.
	clock.set(base.Add(time.Second))
	items[0].done()
	if s.State() != Playing {
		t.Errorf("Expected playing while timeline has queued audio, got %v", s.State())
	}

	// Final completion with the clock at the timeline end.
	clock.set(base.Add(2 * time.Second))
	items[1].done()
	if s.State() != Idle {
		t.Errorf("Expected idle after timeline drained, got %v", s.State())
	}
}

func TestScheduler_CompletionJitterTolerance(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	base := clock.Now()

	s.Enqueue(oneSecondBroadcast("b-1"))

	// Device callbacks can land slightly early; within epsilon still counts
	// as drained.
	clock.set(base.Add(time.Second).Add(-CompletionEpsilon / 2))
	sink.scheduledItems()[0].done()
	if s.State() != Idle {
		t.Errorf("Expected idle within completion epsilon, got %v", s.State())
	}
}

func TestScheduler_Close(t *testing.T) {
	s, _, sink := newTestScheduler(t)

	s.Enqueue(oneSecondBroadcast("b-1"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !sink.closed {
		t.Error("Expected sink closed")
	}

	// Close without a constructed sink is a no-op.
	s2 := NewScheduler(&fakeClock{now: time.Now()}, func() (Sink, error) { return nil, errors.New("unused") }, zerolog.Nop())
	if err := s2.Close(); err != nil {
		t.Errorf("Expected nil from Close with no sink, got %v", err)
	}
}

func TestPlayer_ReplacesInFlight(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	sink := &fakeSink{}
	p := NewPlayer(clock, func() (Sink, error) { return sink, nil })

	if err := p.Play(oneSecondBroadcast("b-1")); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := p.Play(oneSecondBroadcast("b-2")); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	// Each play stops whatever was sounding and starts at the device clock.
	if sink.stops != 2 {
		t.Errorf("Expected 2 stops, got %d", sink.stops)
	}
	items := sink.scheduledItems()
	if len(items) != 2 {
		t.Fatalf("Expected 2 scheduled items, got %d", len(items))
	}
	for i, item := range items {
		if !item.start.Equal(clock.Now()) {
			t.Errorf("Item %d: expected immediate start, got %v", i, item.start)
		}
	}
}

func TestPlayer_SurfacesErrors(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	p := NewPlayer(clock, func() (Sink, error) { return &fakeSink{}, nil })

	if err := p.Play(broadcast.Broadcast{ID: "no-audio"}); err == nil {
		t.Error("Expected error for missing audio")
	}
	if err := p.Play(broadcast.Broadcast{ID: "bad", AudioData: "!!!"}); err == nil {
		t.Error("Expected error for undecodable audio")
	}
}
