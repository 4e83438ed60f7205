package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records primary-credential login attempts by result
	// (success|failure|two_factor).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_login_attempts_total",
			Help: "Total number of primary authentication attempts",
		},
		[]string{"result"},
	)

	// ChallengeAttempts counts two-factor challenge verifications by method
	// (totp|recovery_code) and result (success|failure).
	ChallengeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_two_factor_challenges_total",
			Help: "Total number of two-factor challenge attempts",
		},
		[]string{"method", "result"},
	)

	// TwoFactorChanges counts account-security mutations (enable|confirm|disable|regenerate).
	TwoFactorChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_two_factor_changes_total",
			Help: "Total number of two-factor configuration changes",
		},
		[]string{"operation"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keygate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
