package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Sponsored submission pipeline metrics
	// ============================================
	SubmissionStrategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_submission_strategy_total",
			Help: "Submission attempts per strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	SubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backend_submission_duration_seconds",
		Help:    "End-to-end submit duration including finality wait",
		Buckets: prometheus.DefBuckets,
	})

	// ============================================
	// Pending transaction cache metrics
	// ============================================
	PendingCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_pending_cache_size",
		Help: "Number of entries currently in the pending transaction cache",
	})

	PendingCacheExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_pending_cache_expired_total",
		Help: "Total number of pending transactions expired before submission",
	})

	// ============================================
	// Proof generation metrics
	// ============================================
	ProofModeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_proof_mode_total",
			Help: "Proof generations per provider family and mode",
		},
		[]string{"provider", "mode"},
	)

	ProofUpstreamErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_proof_upstream_errors_total",
		Help: "Total number of upstream proof service failures",
	})

	// ============================================
	// NATS connection metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_events_published_total",
			Help: "Total number of NATS events published",
		},
		[]string{"subject"},
	)
)
