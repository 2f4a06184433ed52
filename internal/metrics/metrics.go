// Package metrics holds the Prometheus collectors for analysis runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PhaseTransitions counts state machine transitions by source and target phase
	PhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_phase_transitions_total",
		Help: "Phase transitions by from and to phase",
	}, []string{"from", "to"})

	// SessionsFinalized counts ended runs by outcome (complete, incomplete, failed)
	SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_sessions_finalized_total",
		Help: "Finalized sessions by outcome",
	}, []string{"outcome"})

	// SearchRequests counts search attempts by strategy and result
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_search_requests_total",
		Help: "Search attempts by strategy and result",
	}, []string{"strategy", "result"})

	// SearchDuration tracks per-attempt search latency
	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assay_search_duration_seconds",
		Help:    "Search attempt duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
	}, []string{"strategy"})

	// EvidenceIngested counts evidence by tier and whether it was new or a duplicate
	EvidenceIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_evidence_ingested_total",
		Help: "Evidence records by tier and dedup result",
	}, []string{"tier", "result"})

	// EvidenceGaps counts queries that failed after all retries
	EvidenceGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assay_evidence_gaps_total",
		Help: "Queries that exhausted their retries",
	})

	// Fallacies counts detected fallacies by kind
	Fallacies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_fallacies_total",
		Help: "Detected fallacies by kind",
	}, []string{"kind"})

	// Contradictions counts contradictions found during propagation
	Contradictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assay_contradictions_total",
		Help: "Contradictions found during propagation",
	})

	// CacheLookups counts search cache lookups by result (hit, miss)
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assay_search_cache_lookups_total",
		Help: "Search cache lookups by result",
	}, []string{"result"})

	// Posterior records final posteriors per dimension
	Posterior = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assay_dimension_posterior",
		Help:    "Final posterior per dimension",
		Buckets: []float64{0.1, 0.25, 0.5, 0.65, 0.9, 1},
	}, []string{"dimension"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
