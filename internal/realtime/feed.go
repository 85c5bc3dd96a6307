package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// FeedMessage is one frame on the backend's change stream.
type FeedMessage struct {
	Event  string         `json:"event"`
	Table  string         `json:"table,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

// Feed attaches to the remote backend's change stream over WebSocket and
// republishes broadcast inserts on the distributor, decoding rows through
// the same tolerant field mapping the store uses. When no backend is
// configured the feed simply never runs and listening degrades silently.
type Feed struct {
	wsURL  string
	dist   *Distributor
	logger zerolog.Logger

	reconnect *resilience.ReconnectConfig

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewFeed builds a change-feed client for the backend at baseURL. Returns
// an error only for an unparseable URL.
func NewFeed(baseURL, apiKey string, dist *Distributor, reconnect *resilience.ReconnectConfig, logger zerolog.Logger) (*Feed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path += "/realtime/v1/broadcasts"
	q := u.Query()
	q.Set("apikey", apiKey)
	u.RawQuery = q.Encode()

	return &Feed{
		wsURL:     u.String(),
		dist:      dist,
		reconnect: reconnect,
		logger:    logger.With().Str("component", "realtime_feed").Logger(),
	}, nil
}

// Connected reports whether the feed currently holds a live connection.
func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Run drives the feed until the context is cancelled, reconnecting with
// exponential backoff after every drop. Missed events are not replayed;
// listeners reconcile through the store's list on reconnect.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := resilience.Reconnect(ctx, func() error {
			return f.dial(ctx)
		}, f.reconnect)
		if err != nil {
			f.logger.Error().Err(err).Msg("Change feed unreachable, listening degrades to local inserts only")
			return
		}

		f.readLoop(ctx)

		f.mu.Lock()
		f.connected = false
		if f.conn != nil {
			_ = f.conn.Close()
			f.conn = nil
		}
		f.mu.Unlock()
	}
}

func (f *Feed) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial change feed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	f.logger.Info().Msg("Change feed connected")
	return nil
}

func (f *Feed) readLoop(ctx context.Context) {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()
	if conn == nil {
		return
	}

	// The watcher unblocks ReadMessage on shutdown; it must itself exit
	// when this connection's read loop ends, or every reconnect cycle
	// would leave one behind.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-readDone:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Warn().Err(err).Msg("Change feed read error, reconnecting")
			}
			return
		}

		var msg FeedMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			f.logger.Error().Err(err).Msg("Failed to parse change feed message")
			continue
		}

		switch msg.Event {
		case "INSERT":
			if msg.Table != "" && msg.Table != "broadcasts" {
				continue
			}
			b, err := broadcast.FromRow(msg.Record)
			if err != nil {
				f.logger.Warn().Err(err).Msg("Skipping undecodable insert event")
				continue
			}
			f.dist.Publish(b)
		case "ping", "heartbeat":
			// Keepalive frames carry no payload.
		default:
			f.logger.Debug().Str("event", msg.Event).Msg("Ignoring change feed event")
		}
	}
}
