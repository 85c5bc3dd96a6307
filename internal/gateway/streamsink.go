package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/playback"
	"github.com/gorilla/websocket"
)

// StreamSink implements playback.Sink over a listener WebSocket: the
// remote client is the output device. Scheduled buffers are paced out as
// fixed-duration binary PCM frames through a ring buffer that smooths the
// burst of a full broadcast payload into realtime-ish delivery.
type StreamSink struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex // shared with the session's JSON writes
	clock   playback.Clock

	frameDur time.Duration
	ring     *audio.RingBuffer

	mu     sync.Mutex
	stops  map[uint64]chan struct{}
	nextID uint64
	closed bool
}

// NewStreamSink creates a sink streaming to conn. writeMu serializes all
// writes on the connection across the session.
func NewStreamSink(conn *websocket.Conn, writeMu *sync.Mutex, clock playback.Clock, bufferSize int, frameDur time.Duration) *StreamSink {
	if frameDur <= 0 {
		frameDur = 100 * time.Millisecond
	}
	return &StreamSink{
		conn:     conn,
		writeMu:  writeMu,
		clock:    clock,
		frameDur: frameDur,
		ring:     audio.NewRingBuffer(bufferSize),
		stops:    make(map[uint64]chan struct{}),
	}
}

// ScheduleAt streams buf starting at start. The wait and the frame pacing
// both run off the session goroutine; scheduling never blocks the caller.
// Streams scheduled back-to-back overlap in their waiting phase, so each
// keeps its own cancellation handle until it finishes.
func (s *StreamSink) ScheduleAt(buf *audio.SampleBuffer, start time.Time, done func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream sink is closed")
	}
	s.nextID++
	id := s.nextID
	stop := make(chan struct{})
	s.stops[id] = stop
	s.mu.Unlock()

	pcm := buf.PCMBytes()
	frameBytes := int(float64(buf.SampleRate*buf.Channels*audio.BytesPerSample) * s.frameDur.Seconds())
	if frameBytes <= 0 {
		frameBytes = 4800
	}

	go func() {
		defer s.release(id)

		if wait := start.Sub(s.clock.Now()); wait > 0 {
			select {
			case <-time.After(wait):
			case <-stop:
				return
			}
		}

		ticker := time.NewTicker(s.frameDur)
		defer ticker.Stop()

		offset := 0
		frame := make([]byte, frameBytes)
		for {
			select {
			case <-stop:
				return
			default:
			}

			// Top up the ring from the remaining payload, then drain one
			// paced frame per tick.
			if offset < len(pcm) {
				offset += s.ring.Write(pcm[offset:])
			}
			n := s.ring.Read(frame)
			if n > 0 {
				if err := s.writeBinary(frame[:n]); err != nil {
					return
				}
				observability.RecordAudioBytesOut(int64(n))
			}
			if offset >= len(pcm) && s.ring.IsEmpty() {
				break
			}

			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}

		if done != nil {
			done()
		}
	}()

	return nil
}

// release removes a finished stream's cancellation handle. Stop may have
// removed it already; either order is fine.
func (s *StreamSink) release(id uint64) {
	s.mu.Lock()
	delete(s.stops, id)
	s.mu.Unlock()
}

// Stop cancels every scheduled stream, sounding or still waiting, and
// discards buffered audio.
func (s *StreamSink) Stop() {
	s.mu.Lock()
	for id, ch := range s.stops {
		close(ch)
		delete(s.stops, id)
	}
	s.mu.Unlock()
	s.ring.Clear()
}

// Close stops streaming permanently. The WebSocket itself belongs to the
// session and is closed there.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Stop()
	return nil
}

func (s *StreamSink) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}
