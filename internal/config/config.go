package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the Rebel Radio relay service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Remote backend (PostgREST-style REST plus a WebSocket change feed).
	// Leave the URL empty to run offline: the local fallback store becomes
	// the only store and the change feed never starts.
	RemoteStoreURL     string `envconfig:"REMOTE_STORE_URL" default:""`
	RemoteStoreKey     string `envconfig:"REMOTE_STORE_KEY" default:""`
	RemoteStoreTimeout int    `envconfig:"REMOTE_STORE_TIMEOUT" default:"15"` // seconds

	// Content generator API
	GeneratorURL     string `envconfig:"GENERATOR_URL" required:"true"`
	GeneratorAPIKey  string `envconfig:"GENERATOR_API_KEY" default:""`
	GeneratorTimeout int    `envconfig:"GENERATOR_TIMEOUT" default:"60"` // seconds

	// Local fallback store
	LocalStorePath       string `envconfig:"LOCAL_STORE_PATH" default:"data/rebel-radio.db"`
	FallbackHistoryLimit int    `envconfig:"FALLBACK_HISTORY_LIMIT" default:"30"` // raw audio payloads are large; can be set as low as 1

	// Gateway configuration
	SubmitRatePerMinute float64 `envconfig:"SUBMIT_RATE_PER_MINUTE" default:"6"`      // per-client submit throttle, ahead of the quota check
	SubmitBurst         int     `envconfig:"SUBMIT_BURST" default:"3"`                //
	ListenerBufferSize  int     `envconfig:"LISTENER_BUFFER_SIZE" default:"262144"`   // outbound PCM ring buffer in bytes
	ListenerFrameMillis int     `envconfig:"LISTENER_FRAME_MILLIS" default:"100"`     // pacing interval for outbound PCM frames

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // failures before opening the generator circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds before probing recovery
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // change feed reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // change feed backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // enable Prometheus metrics
}

// Offline reports whether no remote backend was configured.
func (c *Config) Offline() bool {
	return c.RemoteStoreURL == ""
}

// Load reads configuration from a .env file if present, then the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads configuration from environment variables only, for
// containerized deployments.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GeneratorURL == "" {
		return nil, fmt.Errorf("GENERATOR_URL is required")
	}
	if cfg.RemoteStoreURL != "" && cfg.RemoteStoreKey == "" {
		return nil, fmt.Errorf("REMOTE_STORE_KEY is required when REMOTE_STORE_URL is set")
	}
	if cfg.FallbackHistoryLimit < 1 {
		return nil, fmt.Errorf("FALLBACK_HISTORY_LIMIT must be at least 1")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
