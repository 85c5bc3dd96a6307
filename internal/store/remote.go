package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/rs/zerolog"
)

// ErrSchemaDrift marks a remote rejection whose signature indicates the
// expected table or columns are absent. It permanently demotes the session
// to the local fallback; any other remote error falls back per-call only.
var ErrSchemaDrift = errors.New("remote schema does not match expectations")

// Remote is the durable backend for broadcast rows and quota state.
type Remote interface {
	InsertBroadcast(ctx context.Context, b broadcast.Broadcast) error
	ListBroadcasts(ctx context.Context, limit int) ([]broadcast.Broadcast, error)
	GetQuota(ctx context.Context, clientID string) (quota.State, bool, error)
	PutQuota(ctx context.Context, clientID string, state quota.State) error
}

// RestRemote talks to a PostgREST-style backend: one route per table,
// filters and ordering in the query string, apikey headers on every call.
type RestRemote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewRestRemote creates a remote client for the given backend URL.
func NewRestRemote(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *RestRemote {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RestRemote{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retry:      resilience.DefaultRetryConfig(),
		logger:     logger.With().Str("component", "remote_store").Logger(),
	}
}

// InsertBroadcast writes one broadcast row.
func (r *RestRemote) InsertBroadcast(ctx context.Context, b broadcast.Broadcast) error {
	body, err := json.Marshal(b.ToRow())
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast row: %w", err)
	}
	return r.do(ctx, http.MethodPost, "/rest/v1/broadcasts", nil, body, map[string]string{
		"Prefer": "return=minimal",
	}, nil)
}

// ListBroadcasts reads the most recent rows, newest first. Rows whose shape
// cannot be decoded are skipped rather than failing the whole read.
func (r *RestRemote) ListBroadcasts(ctx context.Context, limit int) ([]broadcast.Broadcast, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "created_at.desc")
	query.Set("limit", fmt.Sprintf("%d", limit))

	var rows []map[string]any
	if err := r.do(ctx, http.MethodGet, "/rest/v1/broadcasts", query, nil, nil, &rows); err != nil {
		return nil, err
	}

	out := make([]broadcast.Broadcast, 0, len(rows))
	for _, row := range rows {
		b, err := broadcast.FromRow(row)
		if err != nil {
			r.logger.Warn().Err(err).Msg("Skipping undecodable broadcast row")
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

type quotaRow struct {
	ID      string `json:"id"`
	Count   int    `json:"count"`
	ResetAt string `json:"resetAt"`
}

// GetQuota reads the quota row for a client. A missing row is not an error.
func (r *RestRemote) GetQuota(ctx context.Context, clientID string) (quota.State, bool, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "eq."+clientID)
	query.Set("limit", "1")

	var rows []quotaRow
	if err := r.do(ctx, http.MethodGet, "/rest/v1/quotas", query, nil, nil, &rows); err != nil {
		return quota.State{}, false, err
	}
	if len(rows) == 0 {
		return quota.State{}, false, nil
	}

	resetAt, err := time.Parse(time.RFC3339Nano, rows[0].ResetAt)
	if err != nil {
		// A stale or malformed reset time rolls over on the next check.
		resetAt = time.Time{}
	}
	return quota.State{Count: rows[0].Count, ResetAt: resetAt}, true, nil
}

// PutQuota upserts the quota row for a client.
func (r *RestRemote) PutQuota(ctx context.Context, clientID string, state quota.State) error {
	body, err := json.Marshal(quotaRow{
		ID:      clientID,
		Count:   state.Count,
		ResetAt: state.ResetAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal quota row: %w", err)
	}
	return r.do(ctx, http.MethodPost, "/rest/v1/quotas", nil, body, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}, nil)
}

// do retries transient transport failures with backoff. Schema drift and
// other remote rejections abort on the first attempt; drift in particular
// must surface immediately so the session demotes instead of hammering a
// backend that will never accept the row.
func (r *RestRemote) do(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string, out any) error {
	return resilience.Retry(func() error {
		return r.doOnce(ctx, method, path, query, body, headers, out)
	}, r.retry, resilience.IsRetryableNetworkError)
}

func (r *RestRemote) doOnce(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string, out any) error {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote store request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read remote store response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if isSchemaDrift(resp.StatusCode, payload) {
			return fmt.Errorf("%w: %s %s returned %d: %s", ErrSchemaDrift, method, path, resp.StatusCode, truncate(payload, 200))
		}
		return fmt.Errorf("remote store returned %d for %s %s: %s", resp.StatusCode, method, path, truncate(payload, 200))
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode remote store response: %w", err)
		}
	}
	return nil
}

// isSchemaDrift classifies a remote rejection by its error signature.
// PostgREST reports missing relations as 42P01 and missing columns as
// 42703; a plain 404 on the table route means the same thing.
func isSchemaDrift(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}

	var remoteErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &remoteErr); err != nil {
		return false
	}
	switch remoteErr.Code {
	case "42P01", "42703", "PGRST204", "PGRST205":
		return true
	}
	msg := strings.ToLower(remoteErr.Message)
	return strings.Contains(msg, "does not exist") &&
		(strings.Contains(msg, "relation") || strings.Contains(msg, "column"))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
