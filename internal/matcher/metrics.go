package matcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// matchesTotal counts match calls by outcome.
	// Labels: outcome (match, no_match)
	matchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discoveryd",
			Subsystem: "matcher",
			Name:      "matches_total",
			Help:      "Total number of completed match calls",
		},
		[]string{"outcome"},
	)

	// matchDuration tracks end-to-end match latency, embedding included.
	matchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "discoveryd",
			Subsystem: "matcher",
			Name:      "match_duration_seconds",
			Help:      "Duration of match calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func observeMatch(d time.Duration, matched bool) {
	outcome := "match"
	if !matched {
		outcome = "no_match"
	}
	matchesTotal.WithLabelValues(outcome).Inc()
	matchDuration.Observe(d.Seconds())
}
