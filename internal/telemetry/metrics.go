package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// EnrichmentsTotal counts completed enrichment attempts by terminal status.
var EnrichmentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "cascade",
		Name:      "enrichments_total",
		Help:      "Total number of contacts reaching a terminal enrichment status.",
	},
	[]string{"status"},
)

// CascadeProviderCallsTotal counts provider lookups by provider and outcome.
var CascadeProviderCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "cascade",
		Name:      "provider_calls_total",
		Help:      "Total number of provider lookup attempts by provider and outcome.",
	},
	[]string{"provider", "outcome"},
)

// CascadeDuration observes end-to-end cascade latency per contact.
var CascadeDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "captely",
		Subsystem: "cascade",
		Name:      "contact_duration_seconds",
		Help:      "Time to resolve a single contact through the cascade.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
	},
)

// CacheHitsTotal counts cache lookups by outcome (user_duplicate, global, miss).
var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache lookups by outcome.",
	},
	[]string{"outcome"},
)

// CreditLedgerWritesTotal counts ledger writes by operation and success.
var CreditLedgerWritesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "ledger",
		Name:      "writes_total",
		Help:      "Total number of credit ledger writes by operation and success.",
	},
	[]string{"operation", "success"},
)

// JobDuration observes wall-clock time to drain a job's contacts.
var JobDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "captely",
		Subsystem: "job",
		Name:      "duration_seconds",
		Help:      "Time to process an entire job from submission to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	},
)

// WorkerPoolQueueDepth tracks the current depth of the job worker queue.
var WorkerPoolQueueDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "captely",
		Subsystem: "job",
		Name:      "queue_depth",
		Help:      "Current number of contacts queued for processing.",
	},
)

// RateLimiterRejectionsTotal counts rate limiter deadline exhaustions per provider.
var RateLimiterRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "provider",
		Name:      "rate_limited_total",
		Help:      "Total number of rate limiter acquisition failures by provider.",
	},
	[]string{"provider"},
)

// CircuitBreakerStateChangesTotal counts provider circuit breaker transitions.
var CircuitBreakerStateChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "captely",
		Subsystem: "provider",
		Name:      "circuit_state_changes_total",
		Help:      "Total number of provider circuit breaker state transitions.",
	},
	[]string{"provider", "to_state"},
)

// All returns every Captely-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EnrichmentsTotal,
		CascadeProviderCallsTotal,
		CascadeDuration,
		CacheHitsTotal,
		CreditLedgerWritesTotal,
		JobDuration,
		WorkerPoolQueueDepth,
		RateLimiterRejectionsTotal,
		CircuitBreakerStateChangesTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors
// and the Captely-specific collectors registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
