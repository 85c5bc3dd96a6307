package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aika-vrdj/Rebel-Radio/internal/config"
	"github.com/Aika-vrdj/Rebel-Radio/internal/gateway"
	"github.com/Aika-vrdj/Rebel-Radio/internal/generator"
	"github.com/Aika-vrdj/Rebel-Radio/internal/observability"
	"github.com/Aika-vrdj/Rebel-Radio/internal/producer"
	"github.com/Aika-vrdj/Rebel-Radio/internal/quota"
	"github.com/Aika-vrdj/Rebel-Radio/internal/realtime"
	"github.com/Aika-vrdj/Rebel-Radio/internal/resilience"
	"github.com/Aika-vrdj/Rebel-Radio/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Bool("offline", cfg.Offline()).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Rebel Radio relay starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage: remote backend (when configured) over the local fallback.
	local := store.OpenLocal(cfg.LocalStorePath, cfg.FallbackHistoryLimit, logger)
	defer local.Close()

	var remote store.Remote
	if !cfg.Offline() {
		remote = store.NewRestRemote(cfg.RemoteStoreURL, cfg.RemoteStoreKey,
			time.Duration(cfg.RemoteStoreTimeout)*time.Second, logger)
	}
	st := store.New(remote, local, quota.RealClock{}, logger)

	// Realtime distribution plus the backend change feed.
	dist := realtime.NewDistributor(logger)
	var feed *realtime.Feed
	if !cfg.Offline() {
		reconnect := &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  30 * time.Second,
		}
		feed, err = realtime.NewFeed(cfg.RemoteStoreURL, cfg.RemoteStoreKey, dist, reconnect, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure change feed")
		}
		go feed.Run(ctx)
	}

	// Content generation behind a circuit breaker.
	breaker := resilience.NewCircuitBreaker("generator",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	gen := generator.NewHTTPClient(cfg.GeneratorURL, cfg.GeneratorAPIKey,
		time.Duration(cfg.GeneratorTimeout)*time.Second, breaker, logger)

	var feedStatus producer.FeedStatus
	if feed != nil {
		feedStatus = feed
	}
	prod := producer.New(st, gen, dist, feedStatus, logger)

	// HTTP surface
	mux := http.NewServeMux()

	handler := gateway.NewHandler(cfg, st, dist, prod, logger)
	handler.Register(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: the local store is the only hard dependency; the remote
	// backend and the generator degrade rather than block startup.
	checks := map[string]observability.HealthCheckFunc{
		"local_store": func(ctx context.Context) (bool, error) {
			if local.ClientID(ctx) == "" {
				return false, fmt.Errorf("local store has no identity")
			}
			return true, nil
		},
		"remote_store": func(ctx context.Context) (bool, error) {
			mode := st.Status().Mode()
			if mode == store.ModeDegraded {
				return false, fmt.Errorf("remote schema drift, running on local fallback")
			}
			return true, nil
		},
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Write timeout is generous because
	// listener WebSocket sessions are long-lived.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/listen", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
