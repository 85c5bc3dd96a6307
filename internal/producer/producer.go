package producer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/generator"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/Aika-vrdj/Rebel-Radio/internal/realtime"
	"github.com/Aika-vrdj/Rebel-Radio/internal/store"
	"github.com/rs/zerolog"
)

// Failures above the store boundary surface verbatim to the calling flow;
// everything below it is swallowed into degraded-mode behavior.
var (
	// ErrQuotaExhausted means the client hit the per-window ceiling. The
	// check happens before any generation call is made; recoverable by
	// waiting for window rollover.
	ErrQuotaExhausted = errors.New("broadcast quota exhausted")
	// ErrGenerationFailed means the content generator errored or returned
	// incomplete data. Retryable by the user; nothing was persisted.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrInvalidRequest means the prompt or mode was unusable.
	ErrInvalidRequest = errors.New("invalid broadcast request")
)

// FeedStatus reports whether the backend change feed is live; when it is,
// remote inserts come back through the feed and local republish would
// double-deliver.
type FeedStatus interface {
	Connected() bool
}

// Producer drives the submission flow: quota gate, content generation,
// persistence, realtime distribution.
type Producer struct {
	store  *store.Store
	gen    generator.Client
	dist   *realtime.Distributor
	feed   FeedStatus // nil when no backend feed exists
	logger zerolog.Logger
}

// New creates a producer. feed may be nil.
func New(st *store.Store, gen generator.Client, dist *realtime.Distributor, feed FeedStatus, logger zerolog.Logger) *Producer {
	return &Producer{
		store:  st,
		gen:    gen,
		dist:   dist,
		feed:   feed,
		logger: logger.With().Str("component", "producer").Logger(),
	}
}

// Quota returns the client's current quota state for gating the UI.
func (p *Producer) Quota(ctx context.Context, clientID string) quota.State {
	return p.store.GetQuota(ctx, clientID)
}

// Submit runs one prompt through the full producer flow and returns the
// stored broadcast. The quota is re-checked immediately before invoking
// the generator so a stale early read cannot let a forbidden call through.
func (p *Producer) Submit(ctx context.Context, clientID, prompt string, mode broadcast.Mode) (broadcast.Broadcast, error) {
	if strings.TrimSpace(prompt) == "" {
		return broadcast.Broadcast{}, fmt.Errorf("%w: empty prompt", ErrInvalidRequest)
	}
	if !mode.Valid() {
		return broadcast.Broadcast{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, mode)
	}

	// Re-check right before the expensive, irreversible generation step.
	state := p.store.GetQuota(ctx, clientID)
	if state.Exhausted() {
		observability.RecordQuotaRejection()
		return broadcast.Broadcast{}, fmt.Errorf("%w: %d/%d used, resets at %s",
			ErrQuotaExhausted, state.Count, quota.Limit, state.ResetAt.UTC().Format("15:04 MST"))
	}

	bundle, err := p.gen.Generate(ctx, prompt, mode)
	if err != nil {
		p.logger.Error().Err(err).Str("client_id", clientID).Msg("Content generation failed")
		return broadcast.Broadcast{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	b := broadcast.New(clientID, bundle.Title, bundle.Script, prompt, bundle.AudioData, bundle.ImageURL, mode)
	backend := p.store.Save(ctx, b)

	// Remote inserts echo back on the change feed; publish directly only
	// when no live feed will carry this record.
	if backend == store.BackendLocal || p.feed == nil || !p.feed.Connected() {
		p.dist.Publish(b)
	}

	p.logger.Info().
		Str("broadcast_id", b.ID).
		Str("client_id", clientID).
		Str("backend", string(backend)).
		Str("mode", string(mode)).
		Msg("Broadcast published")
	return b, nil
}
