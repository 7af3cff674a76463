// Package metrics exposes Prometheus instrumentation for the wallet sync
// executor, the push stream client and the REST circuit breaker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Executor metrics
	WalletSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_wallet_syncs_total",
			Help: "Wallet sync outcomes after retries",
		},
		[]string{"result"}, // "completed", "failed"
	)

	WalletSyncRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_wallet_sync_retries_total",
			Help: "Retries scheduled after a failed wallet sync attempt",
		},
	)

	WalletSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "walletsync_wallet_sync_duration_seconds",
			Help:    "Duration of a single wallet sync attempt against the backend",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Push stream metrics
	StreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletsync_stream_connected",
			Help: "1 while the push stream is live, 0 otherwise",
		},
	)

	StreamReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_stream_reconnects_total",
			Help: "Reconnect attempts scheduled by the push stream client",
		},
	)

	StreamHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "walletsync_stream_heartbeat_timeouts_total",
			Help: "Connections dropped because no heartbeat arrived in time",
		},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_stream_events_total",
			Help: "Push stream events received, by type",
		},
		[]string{"type"},
	)

	StreamDroppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletsync_stream_dropped_events_total",
			Help: "Push stream events dropped before reaching the store",
		},
		[]string{"reason"}, // "unparseable", "missing_fields", "invalid_status", "unknown_type"
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletsync_breaker_state",
			Help: "Sync API circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)

// BoolGauge converts a liveness flag to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}

	return 0
}
