package quota

import (
	"context"
	"time"
)

const (
	// Window is the rolling quota period, measured from the first write
	// after the previous reset rather than a fixed clock boundary.
	Window = 24 * time.Hour
	// Limit is the broadcast ceiling per client per window. The ledger only
	// tracks count and reset time; callers enforce the ceiling.
	Limit = 5
)

// State is the per-client quota counter.
type State struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"resetAt"`
}

// Exhausted reports whether the state has reached the caller-side ceiling.
func (s State) Exhausted() bool {
	return s.Count >= Limit
}

// Clock abstracts time so window rollover can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using system time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Repository persists quota state per client. A missing row is not an
// error; implementations return a zero State and ok=false.
type Repository interface {
	GetQuota(ctx context.Context, clientID string) (State, bool, error)
	PutQuota(ctx context.Context, clientID string, state State) error
}

// Ledger tracks per-client call counts against the rolling window.
type Ledger struct {
	repo  Repository
	clock Clock
}

// NewLedger creates a ledger over the given repository.
func NewLedger(repo Repository, clock Clock) *Ledger {
	if clock == nil {
		clock = RealClock{}
	}
	return &Ledger{repo: repo, clock: clock}
}

// Rollover applies window expiry to a persisted state: a reset time in the
// past yields a fresh window starting now, regardless of the stale count.
func Rollover(s State, now time.Time) State {
	if s.ResetAt.IsZero() || !now.Before(s.ResetAt) {
		return State{Count: 0, ResetAt: now.Add(Window)}
	}
	return s
}

// Check returns the client's current state with rollover applied. It is a
// side-effect-free read: the rolled-over state is not persisted until the
// next Increment.
func (l *Ledger) Check(ctx context.Context, clientID string) (State, error) {
	stored, ok, err := l.repo.GetQuota(ctx, clientID)
	now := l.clock.Now()
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{Count: 0, ResetAt: now.Add(Window)}, nil
	}
	return Rollover(stored, now), nil
}

// Increment applies rollover, bumps the count, and persists the result.
// Read-modify-write with no compare-and-swap: concurrent sessions of the
// same client can race (documented, not resolved).
func (l *Ledger) Increment(ctx context.Context, clientID string) (State, error) {
	state, err := l.Check(ctx, clientID)
	if err != nil {
		return State{}, err
	}
	state.Count++
	if err := l.repo.PutQuota(ctx, clientID, state); err != nil {
		return State{}, err
	}
	return state, nil
}
