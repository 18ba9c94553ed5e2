// Package metrics exposes the pipeline's prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	// CompletionsTotal counts completion attempts by terminal outcome
	// (completed, rejected, error).
	CompletionsTotal *prometheus.CounterVec
	// BurnEntriesTotal counts per-signature burn outcomes (burned, skipped).
	BurnEntriesTotal *prometheus.CounterVec
	// CompletionDuration observes end-to-end pipeline latency in seconds.
	CompletionDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		CompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utilsign_completions_total",
			Help: "Completion attempts by terminal outcome.",
		}, []string{"outcome"}),
		BurnEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "utilsign_burn_entries_total",
			Help: "Signature burn entries by result.",
		}, []string{"result"}),
		CompletionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "utilsign_completion_duration_seconds",
			Help:    "End-to-end completion pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.CompletionsTotal, m.BurnEntriesTotal, m.CompletionDuration)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
