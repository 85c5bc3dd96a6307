package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	storeSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebel_radio_store_saves_total",
		Help: "Total broadcast saves by committing backend",
	}, []string{"backend"})

	storeFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebel_radio_store_fallbacks_total",
		Help: "Remote store failures that fell back to the local store, per operation",
	}, []string{"op"})

	schemaDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebel_radio_store_schema_drift_total",
		Help: "Schema-drift demotions to the local store",
	})

	quotaRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebel_radio_quota_rejections_total",
		Help: "Submissions rejected by the caller-side quota check",
	})

	// Generation metrics
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebel_radio_generation_requests_total",
		Help: "Total content generation requests",
	}, []string{"status"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rebel_radio_generation_latency_seconds",
		Help:    "Content generation latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 20.0, 60.0},
	})

	// Distribution metrics
	activeListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rebel_radio_active_listeners",
		Help: "Number of connected listener sessions",
	})

	broadcastsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebel_radio_broadcasts_distributed_total",
		Help: "Broadcast insert events delivered to subscribers",
	})

	// Playback metrics
	playbackScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebel_radio_playback_scheduled_total",
		Help: "Broadcasts scheduled for gapless playback",
	})

	playbackDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rebel_radio_playback_dropped_total",
		Help: "Broadcasts dropped from playback by reason",
	}, []string{"reason"})

	audioBytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rebel_radio_audio_bytes_out_total",
		Help: "PCM bytes streamed to listeners",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rebel_radio_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RecordStoreSave records a committed broadcast save.
func RecordStoreSave(backend string) {
	storeSaves.WithLabelValues(backend).Inc()
}

// RecordStoreFallback records a per-call fallback to the local store.
func RecordStoreFallback(op string) {
	storeFallbacks.WithLabelValues(op).Inc()
}

// RecordSchemaDrift records a sticky demotion to the local store.
func RecordSchemaDrift() {
	schemaDrift.Inc()
}

// RecordQuotaRejection records a submission stopped by the quota ceiling.
func RecordQuotaRejection() {
	quotaRejections.Inc()
}

// RecordGeneration records a content generation attempt and its latency.
func RecordGeneration(success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	generationRequests.WithLabelValues(status).Inc()
	generationLatency.Observe(seconds)
}

// ListenerConnected bumps the active listener gauge.
func ListenerConnected() {
	activeListeners.Inc()
}

// ListenerDisconnected drops the active listener gauge.
func ListenerDisconnected() {
	activeListeners.Dec()
}

// RecordBroadcastDistributed records one insert event fanned out.
func RecordBroadcastDistributed() {
	broadcastsDistributed.Inc()
}

// RecordPlaybackScheduled records a broadcast entering the gapless queue.
func RecordPlaybackScheduled() {
	playbackScheduled.Inc()
}

// RecordPlaybackDropped records a broadcast dropped from playback.
func RecordPlaybackDropped(reason string) {
	playbackDropped.WithLabelValues(reason).Inc()
}

// RecordAudioBytesOut records PCM bytes streamed to a listener.
func RecordAudioBytesOut(n int64) {
	audioBytesOut.Add(float64(n))
}

// UpdateCircuitBreakerState updates the breaker state gauge for a service.
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}
