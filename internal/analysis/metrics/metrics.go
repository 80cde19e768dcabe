package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LimiterAvailableTokens tracks tokens left in the shared bucket
	LimiterAvailableTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gramo_limiter_available_tokens",
			Help: "Tokens currently available in the upstream rate limiter",
		},
	)

	// LimiterBackoffFloor tracks the adaptive minimum wait
	LimiterBackoffFloor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gramo_limiter_backoff_floor_seconds",
			Help: "Current adaptive backoff floor of the rate limiter",
		},
	)

	// LimiterWaitSeconds tracks forced waits
	LimiterWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gramo_limiter_wait_seconds",
			Help:    "Time callers were suspended by the rate limiter",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// LimiterRejections tracks fail-fast rejections
	LimiterRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gramo_limiter_rejections_total",
			Help: "Total number of calls rejected by the fail-fast policy",
		},
	)

	// UpstreamCallsTotal tracks upstream attempts per provider and stage
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramo_upstream_calls_total",
			Help: "Total number of upstream model calls",
		},
		[]string{"provider", "stage", "outcome"},
	)

	// UpstreamLatency tracks upstream call latency
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gramo_upstream_latency_seconds",
			Help:    "Upstream model call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "stage"},
	)

	// UpstreamRetries tracks retry attempts
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramo_upstream_retries_total",
			Help: "Total number of upstream retries after transient errors",
		},
		[]string{"stage"},
	)

	// RecoveryFallbacks tracks which recovery step produced structured data
	RecoveryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramo_recovery_method_total",
			Help: "Responses recovered per parsing method",
		},
		[]string{"method"},
	)

	// StageOutcomes tracks stage results
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramo_stage_outcomes_total",
			Help: "Stage executions by result",
		},
		[]string{"stage", "result"},
	)

	// PipelineDuration tracks end-to-end analysis time
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gramo_pipeline_duration_seconds",
			Help:    "End-to-end pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// CacheLookups tracks result cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gramo_cache_lookups_total",
			Help: "Result cache lookups by outcome",
		},
		[]string{"result"},
	)

	// DBConnectionPoolUsage tracks history database pool utilisation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gramo_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of the pool maximum",
		},
	)
)
