// Package metrics exposes Prometheus counters for the ingestion pipeline and
// the search projection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mawsim"

// Registry is the process-wide Prometheus registry.
var Registry = prometheus.NewRegistry()

// CandidatesFetched counts raw records fetched per source.
var CandidatesFetched = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_fetched_total",
		Help:      "Raw records fetched from sources",
	},
	[]string{"source"},
)

// CandidateOutcomes counts resolver outcomes applied by the merge writer.
var CandidateOutcomes = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidate_outcomes_total",
		Help:      "Candidate outcomes by result (created, merged, review, skipped)",
	},
	[]string{"source", "outcome"},
)

// PipelineErrors counts per-source pipeline errors by kind.
var PipelineErrors = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_errors_total",
		Help:      "Pipeline errors by source and kind",
	},
	[]string{"source", "kind"},
)

// ProjectionUpserts counts successful per-document search upserts.
var ProjectionUpserts = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_upserts_total",
		Help:      "Search projection document upserts",
	},
)

// ProjectionDeletes counts successful per-document search deletes.
var ProjectionDeletes = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_deletes_total",
		Help:      "Search projection document deletes",
	},
)

// ProjectionErrors counts failed search writes.
var ProjectionErrors = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_errors_total",
		Help:      "Search projection write failures",
	},
)

// ProjectionRebuilds counts completed full rebuilds.
var ProjectionRebuilds = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_rebuilds_total",
		Help:      "Completed full search rebuilds",
	},
)

// SearchHealth is 1 when the search daemon answers its health endpoint.
var SearchHealth = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "search_health",
		Help:      "Search daemon health (1=healthy, 0=unhealthy)",
	},
)
