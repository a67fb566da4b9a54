package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpsertsTotal counts upsert operations.
	// Labels: vector_type, result (success, error)
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "vectorstore",
			Name:      "upserts_total",
			Help:      "Total number of vector upsert operations",
		},
		[]string{"vector_type", "result"},
	)

	// SearchDuration tracks similarity search latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "discoveryd",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"vector_type"},
	)

	// SearchHits tracks how many candidates clear the similarity floor.
	SearchHits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "discoveryd",
			Subsystem: "vectorstore",
			Name:      "search_hits",
			Help:      "Number of hits at or above the similarity threshold per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"vector_type"},
	)

	// DeletesTotal counts delete operations.
	// Labels: result (success, error)
	DeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "vectorstore",
			Name:      "deletes_total",
			Help:      "Total number of vector delete operations",
		},
		[]string{"result"},
	)
)

// ObserveSearch records one search call.
func ObserveSearch(vectorType string, elapsed time.Duration, hits int) {
	SearchDuration.WithLabelValues(vectorType).Observe(elapsed.Seconds())
	SearchHits.WithLabelValues(vectorType).Observe(float64(hits))
}

// resultLabel converts an error into the metric result label.
func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveUpsert records one upsert call.
func ObserveUpsert(vectorType string, err error) {
	UpsertsTotal.WithLabelValues(vectorType, resultLabel(err)).Inc()
}

// ObserveDelete records one delete call.
func ObserveDelete(err error) {
	DeletesTotal.WithLabelValues(resultLabel(err)).Inc()
}
