package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobsTotal counts re-index jobs by kind.
	// Labels: kind (incremental, full)
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "pipeline",
			Name:      "jobs_total",
			Help:      "Total number of re-index jobs started",
		},
		[]string{"kind"},
	)

	// jobDuration tracks end-to-end job latency.
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "discoveryd",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Duration of re-index jobs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// facetsTotal counts per-facet vectorization outcomes.
	// Labels: vector_type, result (success, error)
	facetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "pipeline",
			Name:      "facets_total",
			Help:      "Total number of facet vectorizations",
		},
		[]string{"vector_type", "result"},
	)

	// retriesTotal counts individual embedding retries.
	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "pipeline",
			Name:      "embed_retries_total",
			Help:      "Total number of per-item embedding retries",
		},
	)
)

func observeJobStart(full bool) {
	kind := "incremental"
	if full {
		kind = "full"
	}
	jobsTotal.WithLabelValues(kind).Inc()
}

func observeJobDone(d time.Duration, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	jobDuration.WithLabelValues(result).Observe(d.Seconds())
}

func observeFacet(vectorType string, ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	facetsTotal.WithLabelValues(vectorType, result).Inc()
}

func observeRetry() {
	retriesTotal.Inc()
}
