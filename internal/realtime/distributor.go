package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/rs/zerolog"
)

// Subscription is a handle for one subscriber. Unsubscribing is idempotent.
type Subscription struct {
	id     uint64
	cancel func()
	once   sync.Once
}

// Cancel detaches the subscriber. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Distributor fans newly inserted broadcasts out to active subscribers.
// Delivery is at most once per insert with no buffering or replay: a
// subscriber that connects after an insert will not receive it and must
// reconcile history through the store first.
type Distributor struct {
	mu     sync.RWMutex
	subs   map[uint64]chan broadcast.Broadcast
	seq    atomic.Uint64
	logger zerolog.Logger
}

// NewDistributor creates an empty distributor.
func NewDistributor(logger zerolog.Logger) *Distributor {
	return &Distributor{
		subs:   make(map[uint64]chan broadcast.Broadcast),
		logger: logger.With().Str("component", "distributor").Logger(),
	}
}

// Subscribe registers a callback invoked once per insert event. Each
// subscriber drains its own buffered channel, so a slow callback can drop
// events but never blocks the publisher or its peers.
func (d *Distributor) Subscribe(onInsert func(broadcast.Broadcast)) *Subscription {
	ch := make(chan broadcast.Broadcast, 16)
	id := d.seq.Add(1)

	d.mu.Lock()
	d.subs[id] = ch
	d.mu.Unlock()

	go func() {
		for b := range ch {
			onInsert(b)
		}
	}()

	return &Subscription{
		id: id,
		cancel: func() {
			d.mu.Lock()
			if existing, ok := d.subs[id]; ok {
				delete(d.subs, id)
				close(existing)
			}
			d.mu.Unlock()
		},
	}
}

// Unsubscribe detaches a subscription obtained from Subscribe.
func (d *Distributor) Unsubscribe(sub *Subscription) {
	sub.Cancel()
}

// Publish delivers one insert event to every active subscriber without
// blocking. Publish never replays: only subscribers active at call time
// see the event.
func (d *Distributor) Publish(b broadcast.Broadcast) {
	d.mu.RLock()
	chs := make([]chan broadcast.Broadcast, 0, len(d.subs))
	for _, ch := range d.subs {
		chs = append(chs, ch)
	}
	d.mu.RUnlock()

	for _, ch := range chs {
		func() {
			// A concurrent Cancel may close the channel mid-send.
			defer func() { _ = recover() }()
			select {
			case ch <- b:
			default:
				d.logger.Warn().Str("broadcast_id", b.ID).Msg("Subscriber channel full, dropping insert event")
			}
		}()
	}
	observability.RecordBroadcastDistributed()
}

// SubscriberCount returns the number of active subscriptions.
func (d *Distributor) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}
