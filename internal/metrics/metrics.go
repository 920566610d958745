// Package metrics provides Prometheus instrumentation for the moderation
// pipeline: submission outcomes, ban issuance, retention purges, and
// admission latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SubmissionsTotal counts submission attempts, labeled by outcome:
	// "admitted", "invalid_input", "rate_limited", "banned", or "error".
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftthreads_submissions_total",
		Help: "Total number of message submission attempts by outcome",
	}, []string{"outcome"})

	// BansIssuedTotal counts automatic bans issued by the abuse policy.
	BansIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftthreads_bans_issued_total",
		Help: "Total number of automatic bans issued",
	})

	// PurgedMessagesTotal counts messages deleted by the retention purger.
	PurgedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftthreads_purged_messages_total",
		Help: "Total number of messages deleted by the retention purger",
	})

	// AdmitDuration records the latency of the admission decision,
	// including the per-user critical section.
	AdmitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftthreads_admit_duration_seconds",
		Help:    "Admission decision latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		SubmissionsTotal,
		BansIssuedTotal,
		PurgedMessagesTotal,
		AdmitDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
