package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes one node's counters, histograms and gauges in Prometheus
// exposition format. Metric names and labels follow the scrape contract the
// trust engine queries against.
type Recorder struct {
	nodeID   string
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	cpu      *prometheus.GaugeVec
	memory   *prometheus.GaugeVec
}

func NewRecorder(nodeID string) *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		nodeID:   nodeID,
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled, by outcome status.",
		}, []string{"node_id", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "request_latency_seconds",
			Help: "True request handling latency distribution.",
			// The long tail matters here: delay faults stall for seconds.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 7.5, 10},
		}, []string{"node_id"}),
		cpu: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_cpu_usage_percent",
			Help: "Simulated CPU usage, 0-100.",
		}, []string{"node_id"}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_memory_bytes",
			Help: "Simulated resident memory size in bytes.",
		}, []string{"node_id"}),
	}

	registry.MustRegister(r.requests, r.latency, r.cpu, r.memory)

	return r
}

func (r *Recorder) ObserveRequest(status string, latency time.Duration) {
	r.requests.WithLabelValues(r.nodeID, status).Inc()
	r.latency.WithLabelValues(r.nodeID).Observe(latency.Seconds())
}

func (r *Recorder) SetCPUPercent(v float64) {
	r.cpu.WithLabelValues(r.nodeID).Set(v)
}

func (r *Recorder) SetMemoryBytes(v float64) {
	r.memory.WithLabelValues(r.nodeID).Set(v)
}

// Handler returns the scrape endpoint handler for this node's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
