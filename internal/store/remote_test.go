package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/rs/zerolog"
)

func fastRemoteRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestIsSchemaDrift(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		drift  bool
	}{
		{"missing route", http.StatusNotFound, `{}`, true},
		{"missing relation code", http.StatusBadRequest, `{"code":"42P01","message":"relation \"public.broadcasts\" does not exist"}`, true},
		{"missing column code", http.StatusBadRequest, `{"code":"42703","message":"column \"script\" does not exist"}`, true},
		{"postgrest missing column", http.StatusBadRequest, `{"code":"PGRST204","message":"Could not find the 'script' column"}`, true},
		{"postgrest missing table", http.StatusNotFound, `{"code":"PGRST205","message":"Could not find the table"}`, true},
		{"message-only relation", http.StatusBadRequest, `{"message":"relation \"broadcasts\" does not exist"}`, true},
		{"auth failure", http.StatusUnauthorized, `{"message":"JWT expired"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{"message":"too many requests"}`, false},
		{"server error", http.StatusInternalServerError, `{"message":"internal"}`, false},
		{"unparseable body", http.StatusBadRequest, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSchemaDrift(tt.status, []byte(tt.body)); got != tt.drift {
				t.Errorf("isSchemaDrift(%d, %q) = %v, expected %v", tt.status, tt.body, got, tt.drift)
			}
		})
	}
}

func TestRestRemote_InsertAndList(t *testing.T) {
	var gotAuth, gotPrefer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/broadcasts" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			gotAuth = r.Header.Get("apikey")
			gotPrefer = r.Header.Get("Prefer")
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"id":"b-1","script":"one","created_at":"2026-08-01T12:00:00Z"},
				{"id":"","script":"broken row"},
				{"id":"b-2","content":"two"}
			]`))
		}
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key-123", 5*time.Second, zerolog.Nop())

	if err := remote.InsertBroadcast(context.Background(), testBroadcast("b-1")); err != nil {
		t.Fatalf("InsertBroadcast failed: %v", err)
	}
	if gotAuth != "key-123" {
		t.Errorf("Expected apikey header, got %q", gotAuth)
	}
	if gotPrefer != "return=minimal" {
		t.Errorf("Expected Prefer return=minimal, got %q", gotPrefer)
	}

	rows, err := remote.ListBroadcasts(context.Background(), 30)
	if err != nil {
		t.Fatalf("ListBroadcasts failed: %v", err)
	}
	// The undecodable row is skipped, not fatal.
	if len(rows) != 2 {
		t.Fatalf("Expected 2 decodable rows, got %d", len(rows))
	}
	if rows[0].ID != "b-1" || rows[1].ID != "b-2" {
		t.Errorf("Unexpected row order: %q, %q", rows[0].ID, rows[1].ID)
	}
	if rows[1].Script != "two" {
		t.Errorf("Expected legacy column mapped, got %q", rows[1].Script)
	}
}

func TestRestRemote_DriftClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST205","message":"Could not find the table"}`))
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key", 5*time.Second, zerolog.Nop())

	err := remote.InsertBroadcast(context.Background(), testBroadcast("b-1"))
	if !errors.Is(err, ErrSchemaDrift) {
		t.Errorf("Expected ErrSchemaDrift, got %v", err)
	}
}

func TestRestRemote_TransientNotDrift(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"try later"}`))
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key", 5*time.Second, zerolog.Nop())

	err := remote.InsertBroadcast(context.Background(), testBroadcast("b-1"))
	if err == nil {
		t.Fatal("Expected error")
	}
	if errors.Is(err, ErrSchemaDrift) {
		t.Error("Expected transient error to not classify as drift")
	}
}

func TestRestRemote_RetriesTransientFailures(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"message":"service unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key", 5*time.Second, zerolog.Nop())
	remote.retry = fastRemoteRetry()

	if err := remote.InsertBroadcast(context.Background(), testBroadcast("b-1")); err != nil {
		t.Fatalf("Expected insert to succeed after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRestRemote_DriftNotRetried(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST205","message":"Could not find the table"}`))
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key", 5*time.Second, zerolog.Nop())
	remote.retry = fastRemoteRetry()

	err := remote.InsertBroadcast(context.Background(), testBroadcast("b-1"))
	if !errors.Is(err, ErrSchemaDrift) {
		t.Fatalf("Expected ErrSchemaDrift, got %v", err)
	}
	// Drift demotes the session; retrying the same request is pointless.
	if attempts != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts)
	}
}

func TestRestRemote_QuotaRoundTrip(t *testing.T) {
	stored := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/quotas" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		switch r.Method {
		case http.MethodPost:
			stored["c-1"] = `[{"id":"c-1","count":3,"resetAt":"2026-08-02T12:00:00Z"}]`
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			if body, ok := stored["c-1"]; ok {
				w.Write([]byte(body))
			} else {
				w.Write([]byte(`[]`))
			}
		}
	}))
	defer server.Close()

	remote := NewRestRemote(server.URL, "key", 5*time.Second, zerolog.Nop())

	// Missing row yields ok=false without error.
	_, ok, err := remote.GetQuota(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if ok {
		t.Error("Expected no row before upsert")
	}

	state := quota.State{Count: 3, ResetAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)}
	if err := remote.PutQuota(context.Background(), "c-1", state); err != nil {
		t.Fatalf("PutQuota failed: %v", err)
	}

	got, ok, err := remote.GetQuota(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected row after upsert")
	}
	if got.Count != 3 {
		t.Errorf("Expected count 3, got %d", got.Count)
	}
}
