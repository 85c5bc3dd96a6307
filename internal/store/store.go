package store

import (
	"context"
	"errors"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/rs/zerolog"
)

// HistoryLimit bounds how many records List returns, newest first.
const HistoryLimit = 30

// Backend names which store committed a write.
type Backend string

const (
	BackendRemote Backend = "remote"
	BackendLocal  Backend = "local"
)

// Store is the single durable entry point for broadcasts and quota state.
// It wraps the remote backend and the local fallback behind one surface:
// Save and List always complete and always answer with something, at the
// cost of occasionally answering from stale/local data. Degradation is
// visible only through the Status signal.
type Store struct {
	remote       Remote // nil when no backend is configured
	local        *Local
	status       *Status
	localLedger  *quota.Ledger
	remoteLedger *quota.Ledger
	logger       zerolog.Logger
}

// New builds a store over the given backends. remote may be nil, which
// fixes the session to offline mode.
func New(remote Remote, local *Local, clock quota.Clock, logger zerolog.Logger) *Store {
	s := &Store{
		remote:      remote,
		local:       local,
		status:      NewStatus(remote == nil),
		localLedger: quota.NewLedger(local, clock),
		logger:      logger.With().Str("component", "store").Logger(),
	}
	if remote != nil {
		s.remoteLedger = quota.NewLedger(remote, clock)
	}
	return s
}

// Status exposes the session store mode for the status indicator.
func (s *Store) Status() *Status {
	return s.status
}

// ClientID returns the persisted per-device client identifier.
func (s *Store) ClientID(ctx context.Context) string {
	return s.local.ClientID(ctx)
}

// Save persists a broadcast and advances the owning client's quota in the
// same backend, keeping count and history causally consistent within one
// store. It never returns an error; the result names the backend that took
// the write.
func (s *Store) Save(ctx context.Context, b broadcast.Broadcast) Backend {
	if s.status.RemoteViable() {
		err := s.remote.InsertBroadcast(ctx, b)
		if err == nil {
			s.status.MarkConnected()
			observability.RecordStoreSave(string(BackendRemote))
			// Quota upsert is best-effort: a failure here must not unwind
			// the already-committed broadcast write.
			if _, qerr := s.remoteLedger.Increment(ctx, b.ClientID); qerr != nil {
				s.logger.Warn().Err(qerr).Str("client_id", b.ClientID).Msg("Remote quota upsert failed after committed insert")
			}
			return BackendRemote
		}
		s.noteRemoteFailure(err, "save")
	}

	s.local.SaveBroadcast(ctx, b)
	if _, err := s.localLedger.Increment(ctx, b.ClientID); err != nil {
		// The local repository absorbs its own failures; this is unreachable
		// with the sqlite fallback but kept for interface safety.
		s.logger.Error().Err(err).Msg("Local quota increment failed")
	}
	observability.RecordStoreSave(string(BackendLocal))
	return BackendLocal
}

// List returns the most recent broadcasts, newest first, bounded to the
// last 30. Callers cannot distinguish "remote empty" from "remote failed";
// consistency of some answer matters more than provenance here.
func (s *Store) List(ctx context.Context) []broadcast.Broadcast {
	if s.status.RemoteViable() {
		rows, err := s.remote.ListBroadcasts(ctx, HistoryLimit)
		if err == nil {
			s.status.MarkConnected()
			return rows
		}
		s.noteRemoteFailure(err, "list")
	}
	return s.local.ListBroadcasts(ctx, HistoryLimit)
}

// GetQuota returns the client's quota state with window rollover applied,
// from whichever backend is currently authoritative.
func (s *Store) GetQuota(ctx context.Context, clientID string) quota.State {
	if s.status.RemoteViable() {
		state, err := s.remoteLedger.Check(ctx, clientID)
		if err == nil {
			s.status.MarkConnected()
			return state
		}
		s.noteRemoteFailure(err, "quota")
	}
	state, _ := s.localLedger.Check(ctx, clientID)
	return state
}

// noteRemoteFailure classifies a remote error: a schema-drift signature
// demotes the session permanently, anything else falls back for this call
// only and a later call may reach the remote again.
func (s *Store) noteRemoteFailure(err error, op string) {
	if errors.Is(err, ErrSchemaDrift) {
		s.logger.Warn().Err(err).Str("op", op).Msg("Remote schema drift detected, degrading to local store for this session")
		s.status.MarkDegraded()
		observability.RecordSchemaDrift()
		return
	}
	s.logger.Warn().Err(err).Str("op", op).Msg("Remote store unavailable, falling back to local store for this call")
	observability.RecordStoreFallback(op)
}
