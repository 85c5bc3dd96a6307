package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/broadcast"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/rs/zerolog"
)

// HTTPClient talks to the content generation service over HTTP JSON.
// Generation is the expensive, irreversible step in the producer flow, so
// calls run behind a circuit breaker.
type HTTPClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	logger     zerolog.Logger
}

type generateRequest struct {
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode"`
	SampleRate int    `json:"sample_rate"`
}

type generateResponse struct {
	Title       string `json:"title"`
	Script      string `json:"script"`
	AudioBase64 string `json:"audio_base64"`
	ImageURL    string `json:"image_url"`
}

// NewHTTPClient creates a generator client.
func NewHTTPClient(apiURL, apiKey string, timeout time.Duration, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		logger:     logger.With().Str("component", "generator").Logger(),
	}
}

// Generate requests a content bundle for the prompt. A response missing a
// title or script counts as a failure: partial records are never persisted.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, mode broadcast.Mode) (*Bundle, error) {
	start := time.Now()
	var bundle *Bundle

	err := c.breaker.Call(func() error {
		var callErr error
		bundle, callErr = c.generate(ctx, prompt, mode)
		return callErr
	})

	observability.UpdateCircuitBreakerState("generator", int(c.breaker.State()))
	observability.RecordGeneration(err == nil, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (c *HTTPClient) generate(ctx context.Context, prompt string, mode broadcast.Mode) (*Bundle, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:     prompt,
		Mode:       string(mode),
		SampleRate: 24000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generator response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode generator response: %w", err)
	}
	if out.Title == "" || out.Script == "" {
		return nil, fmt.Errorf("generator returned incomplete bundle (title or script missing)")
	}
	if out.AudioBase64 == "" {
		c.logger.Warn().Str("title", out.Title).Msg("Generator returned no audio, broadcast will be text-only")
	}

	return &Bundle{
		Title:     out.Title,
		Script:    out.Script,
		AudioData: out.AudioBase64,
		ImageURL:  out.ImageURL,
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}, nil
}
