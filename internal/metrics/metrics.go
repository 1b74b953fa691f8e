package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "nsstatus"

	// Labels
	fetchKindLabel    = "kind"
	fetchOutcomeLabel = "outcome"
	submitResultLabel = "result"
)

// Fetch kinds
const (
	FetchTraceback    = "traceback"
	FetchUploads      = "uploads"
	FetchImageVersion = "image_version"
)

// Fetch outcomes
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

var fetchesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_fetches_total",
		Help:      "Number of background fetches against the Neuroscout API by kind and outcome.",
	},
	[]string{fetchKindLabel, fetchOutcomeLabel},
)

var submissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Number of generate requests by result.",
	},
	[]string{submitResultLabel},
)

var trackedAnalysesMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_analyses",
		Help:      "Number of analyses with live status trackers.",
	},
)

// IncFetch records the outcome of one upstream fetch.
func IncFetch(kind, outcome string) {
	fetchesTotalMetric.With(prometheus.Labels{
		fetchKindLabel:    kind,
		fetchOutcomeLabel: outcome,
	}).Inc()
}

// IncSubmission records a generate request result such as "forwarded" or "rejected".
func IncSubmission(result string) {
	submissionsTotalMetric.With(prometheus.Labels{submitResultLabel: result}).Inc()
}

func SetTrackedAnalyses(n int) {
	trackedAnalysesMetric.Set(float64(n))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(fetchesTotalMetric)
	prometheus.MustRegister(submissionsTotalMetric)
	prometheus.MustRegister(trackedAnalysesMetric)
}
