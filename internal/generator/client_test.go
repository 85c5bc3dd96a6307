package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/rs/zerolog"
)

func testClient(serverURL string) *HTTPClient {
	breaker := resilience.NewCircuitBreaker("generator", 5, time.Second)
	return NewHTTPClient(serverURL, "test-key", 5*time.Second, breaker, zerolog.Nop())
}

func TestGenerate_Success(t *testing.T) {
	var gotReq generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected api key header, got %q", r.Header.Get("x-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(generateResponse{
			Title:       "Midnight Static",
			Script:      "You are listening to the void.",
			AudioBase64: "AAAA",
			ImageURL:    "https://example.com/cover.png",
		})
	}))
	defer server.Close()

	bundle, err := testClient(server.URL).Generate(context.Background(), "midnight", broadcast.ModeCreative)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gotReq.Prompt != "midnight" || gotReq.Mode != "creative" {
		t.Errorf("Unexpected request: %+v", gotReq)
	}
	if gotReq.SampleRate != 24000 {
		t.Errorf("Expected 24kHz request, got %d", gotReq.SampleRate)
	}
	if bundle.Title != "Midnight Static" || bundle.AudioData != "AAAA" {
		t.Errorf("Unexpected bundle: %+v", bundle)
	}
	if bundle.Mode != broadcast.ModeCreative {
		t.Errorf("Expected creative mode, got %q", bundle.Mode)
	}
}

func TestGenerate_IncompleteBundleFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Title without script is not a usable broadcast.
		json.NewEncoder(w).Encode(generateResponse{Title: "Only a Title"})
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Generate(context.Background(), "prompt", broadcast.ModeCreative); err == nil {
		t.Error("Expected error for incomplete bundle")
	}
}

func TestGenerate_MissingAudioIsTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Title: "Text Only", Script: "script"})
	}))
	defer server.Close()

	bundle, err := testClient(server.URL).Generate(context.Background(), "prompt", broadcast.ModeManual)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if bundle.AudioData != "" {
		t.Errorf("Expected empty audio, got %q", bundle.AudioData)
	}
}

func TestGenerate_ServerErrorFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Generate(context.Background(), "prompt", broadcast.ModeCreative); err == nil {
		t.Error("Expected error for server failure")
	}
}

func TestGenerate_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	breaker := resilience.NewCircuitBreaker("generator", 2, time.Minute)
	client := NewHTTPClient(server.URL, "key", 5*time.Second, breaker, zerolog.Nop())

	client.Generate(context.Background(), "p", broadcast.ModeCreative)
	client.Generate(context.Background(), "p", broadcast.ModeCreative)

	_, err := client.Generate(context.Background(), "p", broadcast.ModeCreative)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen after repeated failures, got %v", err)
	}
}
