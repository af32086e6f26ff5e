package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interndocs_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// DocumentUploads counts document uploads by document type and result (created|duplicate|error).
	DocumentUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interndocs_document_uploads_total",
			Help: "Total number of document upload attempts",
		},
		[]string{"type", "result"},
	)

	// DocumentTransitions counts lifecycle transitions by action and result (applied|rejected).
	DocumentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interndocs_document_transitions_total",
			Help: "Total number of document lifecycle transitions",
		},
		[]string{"action", "result"},
	)

	// NotificationsDispatched counts notifications created by type.
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interndocs_notifications_dispatched_total",
			Help: "Total number of notifications dispatched",
		},
		[]string{"type"},
	)

	// RateLimitRejections counts requests rejected by the rate limiter, per scope.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interndocs_rate_limit_rejections_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"scope"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interndocs_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
