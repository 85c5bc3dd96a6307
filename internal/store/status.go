package store

import (
	"sync"
)

// Mode indicates which backend is currently authoritative. It is exposed to
// the UI layer as a status signal and gates remote attempts; nothing else
// keys off it.
type Mode string

const (
	// ModeOffline means no remote backend was configured. Fixed at init.
	ModeOffline Mode = "offline"
	// ModeConnecting means no remote call has completed yet this session.
	ModeConnecting Mode = "connecting"
	// ModeConnected means the last remote call succeeded.
	ModeConnected Mode = "connected"
	// ModeDegraded means the remote schema does not match expectations.
	// Sticky for the session: once degraded, never connected again.
	ModeDegraded Mode = "degraded"
)

// Status encapsulates the process-wide store mode with its one-directional
// transition rules, instead of free-floating module state.
type Status struct {
	mu   sync.RWMutex
	mode Mode
}

// NewStatus creates the session status. offline is fixed at initialization
// and never changes afterwards.
func NewStatus(offline bool) *Status {
	mode := ModeConnecting
	if offline {
		mode = ModeOffline
	}
	return &Status{mode: mode}
}

// Mode returns the current store mode.
func (s *Status) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// RemoteViable reports whether a remote call should be attempted at all.
func (s *Status) RemoteViable() bool {
	switch s.Mode() {
	case ModeOffline, ModeDegraded:
		return false
	}
	return true
}

// MarkConnected records a successful remote call. It is ignored once the
// session is degraded or when no backend is configured.
func (s *Status) MarkConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeDegraded || s.mode == ModeOffline {
		return
	}
	s.mode = ModeConnected
}

// MarkDegraded records a schema mismatch. The transition is permanent for
// the session; no automatic remote retry happens thereafter.
func (s *Status) MarkDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeOffline {
		return
	}
	s.mode = ModeDegraded
}
