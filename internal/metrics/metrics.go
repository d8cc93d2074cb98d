// Package metrics exposes capture counters and fetch latency to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Capture outcomes.
const (
	OutcomeSaved          = "saved"
	OutcomeClassifyFailed = "classification_failed"
	OutcomeFetchFailed    = "fetch_failed"
	OutcomeDecodeFailed   = "nested_decode_failed"
	OutcomeWriteFailed    = "write_failed"
)

// Recorder owns a private registry so tests and multiple servers never collide on
// the global one.
type Recorder struct {
	registry      *prometheus.Registry
	capturesTotal *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

// New creates a Recorder with the datashop metrics registered.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datashop",
			Name:      "captures_total",
			Help:      "Processed capture attempts by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
	r.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datashop",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of remote fetch calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	r.registry.MustRegister(r.capturesTotal, r.fetchDuration)
	return r
}

// Capture counts one processed URL. platform is "unknown" for URLs that never
// classified.
func (r *Recorder) Capture(platform, outcome string) {
	if r == nil {
		return
	}
	if platform == "" {
		platform = "unknown"
	}
	r.capturesTotal.WithLabelValues(platform, outcome).Inc()
}

// FetchDuration observes one remote fetch.
func (r *Recorder) FetchDuration(platform string, d time.Duration) {
	if r == nil {
		return
	}
	r.fetchDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
