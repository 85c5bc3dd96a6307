package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/playback"
	"github.com/Aika-vrdj/Rebel-Radio/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Listeners are anonymous; origin filtering happens upstream.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ListenerMessage is a command from the listening client.
type ListenerMessage struct {
	Action string `json:"action"` // "play", "stop"
	ID     string `json:"id,omitempty"`
}

// ServerMessage is a JSON frame to the listening client. Binary frames on
// the same connection carry raw PCM.
type ServerMessage struct {
	Type       string          `json:"type"` // "history", "broadcast", "levels", "error"
	Broadcast  *BroadcastMeta  `json:"broadcast,omitempty"`
	Broadcasts []BroadcastMeta `json:"broadcasts,omitempty"`
	Levels     []float64       `json:"levels,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// BroadcastMeta is a broadcast without its audio payload; audio travels as
// paced binary PCM frames instead.
type BroadcastMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Script       string    `json:"script"`
	PromptSource string    `json:"prompt_source"`
	ImageURL     string    `json:"image_url"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	HasAudio     bool      `json:"has_audio"`
}

func toMeta(b broadcast.Broadcast) BroadcastMeta {
	return BroadcastMeta{
		ID:           b.ID,
		Title:        b.Title,
		Script:       b.Script,
		PromptSource: b.PromptSource,
		ImageURL:     b.ImageURL,
		Mode:         string(b.Mode),
		CreatedAt:    b.CreatedAt,
		HasAudio:     b.HasAudio(),
	}
}

// ListenerSession holds the state of one listening connection: the
// WebSocket, its playback pipeline, and its distributor subscription.
type ListenerSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	handler   *Handler
	sink      *StreamSink
	scheduler *playback.Scheduler
	player    *playback.Player
	sub       *realtime.Subscription

	logger zerolog.Logger
	done   chan struct{}
	once   sync.Once
}

// HandleListenWS upgrades a listener connection and runs its session.
func (h *Handler) HandleListenWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to upgrade listener connection")
			return
		}
		defer conn.Close()

		session := h.newListenerSession(conn)
		observability.ListenerConnected()
		defer observability.ListenerDisconnected()

		session.run(r.Context())
	}
}

func (h *Handler) newListenerSession(conn *websocket.Conn) *ListenerSession {
	correlationID := observability.NewCorrelationID()
	s := &ListenerSession{
		conn:    conn,
		handler: h,
		logger:  observability.WithCorrelationID(correlationID).With().Str("component", "listener").Logger(),
		done:    make(chan struct{}),
	}

	clock := playback.DeviceClock{}
	s.sink = NewStreamSink(conn, &s.writeMu, clock, h.cfg.ListenerBufferSize,
		time.Duration(h.cfg.ListenerFrameMillis)*time.Millisecond)

	// The scheduler and the audit player share the session's one output
	// graph; the factory hands out the same sink on first use.
	factory := func() (playback.Sink, error) { return s.sink, nil }
	s.scheduler = playback.NewScheduler(clock, factory, s.logger)
	s.player = playback.NewPlayer(clock, factory)
	return s
}

func (s *ListenerSession) run(ctx context.Context) {
	s.logger.Info().Msg("Listener connected")
	defer s.logger.Info().Msg("Listener disconnected")
	defer s.close()

	// Reconcile history first: the feed has no buffering or replay, so
	// anything inserted before this point only exists in the store.
	history := s.handler.store.List(ctx)
	metas := make([]BroadcastMeta, 0, len(history))
	for _, b := range history {
		metas = append(metas, toMeta(b))
	}
	if err := s.writeJSON(ServerMessage{Type: "history", Broadcasts: metas}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send history")
		return
	}

	// From here on, anything new arrives through the distributor.
	s.sub = s.handler.dist.Subscribe(func(b broadcast.Broadcast) {
		meta := toMeta(b)
		if err := s.writeJSON(ServerMessage{Type: "broadcast", Broadcast: &meta}); err != nil {
			return
		}
		s.scheduler.Enqueue(b)
		if levels := s.scheduler.Levels(); levels.Peak() > 0 {
			_ = s.writeJSON(ServerMessage{Type: "levels", Levels: []float64{levels.Peak()}})
		}
	})

	s.readLoop(ctx)
}

// readLoop handles commands from the listening client until the
// connection drops.
func (s *ListenerSession) readLoop(ctx context.Context) {
	for {
		var msg ListenerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Listener read error")
			}
			return
		}

		switch msg.Action {
		case "play":
			// Audit playback: immediate, replaces anything in flight.
			b, ok := s.findBroadcast(ctx, msg.ID)
			if !ok {
				_ = s.writeJSON(ServerMessage{Type: "error", Error: "unknown broadcast: " + msg.ID})
				continue
			}
			if err := s.player.Play(b); err != nil {
				s.logger.Warn().Err(err).Str("broadcast_id", msg.ID).Msg("Audit playback failed")
				_ = s.writeJSON(ServerMessage{Type: "error", Error: "playback failed"})
			}
		case "stop":
			s.player.Stop()
		default:
			s.logger.Debug().Str("action", msg.Action).Msg("Unknown listener action")
		}
	}
}

func (s *ListenerSession) findBroadcast(ctx context.Context, id string) (broadcast.Broadcast, bool) {
	for _, b := range s.handler.store.List(ctx) {
		if b.ID == id {
			return b, true
		}
	}
	return broadcast.Broadcast{}, false
}

func (s *ListenerSession) writeJSON(msg ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *ListenerSession) close() {
	s.once.Do(func() {
		if s.sub != nil {
			s.sub.Cancel()
		}
		_ = s.scheduler.Close()
		_ = s.player.Close()
		close(s.done)
	})
}
