package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions records admission protocol outcomes
	// (accepted|missing_fields|unauthorized|conflict|internal_failure).
	Admissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formgate_admissions_total",
			Help: "Total number of submission admission attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AllowlistTokens tracks the number of unused tokens seen on the last allowlist read or write.
	AllowlistTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formgate_allowlist_tokens",
			Help: "Number of unused authorization tokens in the allowlist",
		},
	)

	// ReconciledTokens counts tokens removed by the reconciler because a record already existed.
	ReconciledTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formgate_reconciled_tokens_total",
			Help: "Total number of stale allowlist tokens removed by reconciliation",
		},
	)

	// LockWait measures how long admissions wait for the allowlist mutation lock.
	LockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formgate_allowlist_lock_wait_seconds",
			Help:    "Time spent waiting for the allowlist mutation lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
