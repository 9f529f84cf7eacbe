package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkmon_provider_requests_total",
			Help: "Total number of provider requests",
		},
		[]string{"source", "operation", "outcome"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkmon_provider_retries_total",
			Help: "Total number of provider request retries",
		},
		[]string{"source", "reason"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "darkmon_provider_request_duration_seconds",
			Help:    "Time taken by provider requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "operation"},
	)

	RateLimiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "darkmon_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	CredentialRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkmon_credential_rotations_total",
			Help: "Total number of credential rotations",
		},
		[]string{"source", "outcome"},
	)

	HealthAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkmon_health_alerts_total",
			Help: "Total number of health alerts fired",
		},
		[]string{"source", "type"},
	)
)

// Retry reason label values
const (
	RetryReasonTransient   = "transient"
	RetryReasonRateLimited = "rate_limited"
)

// Request outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
