package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/audio"
	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/config"
	"github.com/Aika-vrdj/Rebel-Radio/internal/producer"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/Aika-vrdj/Rebel-Radio/internal/realtime"
	"github.com/Aika-vrdj/Rebel-Radio/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handler exposes the HTTP surface of the relay: broadcast submission,
// history listing, WAV download, listener WebSocket, and service status.
type Handler struct {
	cfg      *config.Config
	store    *store.Store
	dist     *realtime.Distributor
	producer *producer.Producer
	logger   zerolog.Logger

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHandler creates the gateway handler.
func NewHandler(cfg *config.Config, st *store.Store, dist *realtime.Distributor, prod *producer.Producer, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		store:    st,
		dist:     dist,
		producer: prod,
		logger:   logger.With().Str("component", "gateway").Logger(),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register wires the gateway routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/broadcasts", h.handleBroadcasts)
	mux.HandleFunc("/broadcasts/download", h.handleDownload)
	mux.HandleFunc("/quota", h.handleQuota)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/listen", h.HandleListenWS())
}

// limiter returns the per-client submission limiter, creating one on
// first sight. This is a cheap abuse throttle in front of the quota
// ledger, not a substitute for it.
func (h *Handler) limiter(clientID string) *rate.Limiter {
	h.limitMu.Lock()
	defer h.limitMu.Unlock()
	lim, ok := h.limiters[clientID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(h.cfg.SubmitRatePerMinute/60.0), h.cfg.SubmitBurst)
		h.limiters[clientID] = lim
	}
	return lim
}

type submitRequest struct {
	ClientID string `json:"client_id"`
	Prompt   string `json:"prompt"`
	Mode     string `json:"mode"`
}

type submitResponse struct {
	Broadcast BroadcastMeta `json:"broadcast"`
	Quota     quotaPayload  `json:"quota"`
}

type quotaPayload struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type statusResponse struct {
	StoreMode   string `json:"store_mode"`
	Listeners   int    `json:"listeners"`
	FeedLive    bool   `json:"feed_live"`
	HistorySize int    `json:"history_size"`
}

func toQuotaPayload(s quota.State) quotaPayload {
	remaining := quota.Limit - s.Count
	if remaining < 0 {
		remaining = 0
	}
	return quotaPayload{Count: s.Count, Limit: quota.Limit, Remaining: remaining, ResetAt: s.ResetAt}
}

// handleBroadcasts dispatches POST (submit) and GET (list history).
func (h *Handler) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ClientID == "" {
		req.ClientID = h.store.ClientID(r.Context())
	}

	if !h.limiter(req.ClientID).Allow() {
		writeError(w, http.StatusTooManyRequests, "too many submissions, slow down")
		return
	}

	mode := broadcast.Mode(req.Mode)
	if req.Mode == "" {
		mode = broadcast.ModeCreative
	}

	b, err := h.producer.Submit(r.Context(), req.ClientID, req.Prompt, mode)
	if err != nil {
		switch {
		case errors.Is(err, producer.ErrQuotaExhausted):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, producer.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, producer.ErrGenerationFailed):
			writeError(w, http.StatusBadGateway, "content generation is unavailable, try again shortly")
		default:
			h.logger.Error().Err(err).Msg("Unexpected submit failure")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Broadcast: toMeta(b),
		Quota:     toQuotaPayload(h.producer.Quota(r.Context(), req.ClientID)),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	history := h.store.List(r.Context())
	metas := make([]BroadcastMeta, 0, len(history))
	for _, b := range history {
		metas = append(metas, toMeta(b))
	}
	writeJSON(w, http.StatusOK, metas)
}

// handleDownload streams one broadcast's audio as a WAV file.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	var found *broadcast.Broadcast
	for _, b := range h.store.List(r.Context()) {
		if b.ID == id {
			found = &b
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "unknown broadcast")
		return
	}
	if !found.HasAudio() {
		writeError(w, http.StatusNotFound, "broadcast has no audio")
		return
	}

	pcm, err := audio.Decode(found.AudioData)
	if err != nil {
		h.logger.Error().Err(err).Str("broadcast_id", id).Msg("Stored audio failed to decode")
		writeError(w, http.StatusInternalServerError, "stored audio is corrupt")
		return
	}
	wav, err := audio.EncodeWAV(pcm, audio.SampleRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode WAV")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadFilename(found.Title, found.ID)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = h.store.ClientID(r.Context())
	}
	writeJSON(w, http.StatusOK, toQuotaPayload(h.producer.Quota(r.Context(), clientID)))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		StoreMode:   string(h.store.Status().Mode()),
		Listeners:   h.dist.SubscriberCount(),
		FeedLive:    h.store.Status().Mode() == store.ModeConnected,
		HistorySize: len(h.store.List(r.Context())),
	})
}

// downloadFilename builds a filesystem-safe name from the broadcast title,
// suffixed with a slice of the id to keep collisions apart.
func downloadFilename(title, id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "broadcast"
	}
	if len(name) > 48 {
		name = name[:48]
	}
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "-" + id + ".wav"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
