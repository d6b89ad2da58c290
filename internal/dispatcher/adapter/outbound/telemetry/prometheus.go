package telemetry

import (
	"net/http"

	"github.com/anthanhphan/go-byzantine-lb/internal/dispatcher/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes the dispatcher's own observability surface: dispatch
// outcomes, forwarded-request latency, current trust weights and refresh
// cycles.
type Recorder struct {
	registry *prometheus.Registry

	dispatches *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	weight     *prometheus.GaugeVec
	refreshes  *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_requests_total",
			Help: "Dispatched requests by node, routing mode and outcome.",
		}, []string{"node_id", "mode", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_latency_seconds",
			Help:    "Forwarded request latency as seen by the dispatcher.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 7.5},
		}, []string{"node_id"}),
		weight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_trust_weight",
			Help: "Current routing weight per node.",
		}, []string{"node_id"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weight_refresh_cycles_total",
			Help: "Completed weight-refresh cycles by resulting mode.",
		}, []string{"mode"}),
	}

	registry.MustRegister(r.dispatches, r.latency, r.weight, r.refreshes)

	return r
}

func (r *Recorder) RecordDispatch(ev domain.DispatchEvent) {
	r.dispatches.WithLabelValues(ev.NodeID, string(ev.Mode), string(ev.Outcome)).Inc()
	r.latency.WithLabelValues(ev.NodeID).Observe(ev.Latency.Seconds())
}

func (r *Recorder) RecordRefresh(mode domain.Mode) {
	r.refreshes.WithLabelValues(string(mode)).Inc()
}

func (r *Recorder) SetNodeWeight(nodeID string, weight float64) {
	r.weight.WithLabelValues(nodeID).Set(weight)
}

// Handler returns the scrape endpoint handler for the dispatcher registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
