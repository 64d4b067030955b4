// Package metrics exposes listing and upload counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "gdrvflow"

// Metrics implements the listing and resolver metric hooks. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs      *prometheus.CounterVec
	Entries   prometheus.Counter
	Pages     prometheus.Counter
	Flushes   prometheus.Counter
	Uploads   *prometheus.CounterVec
	Watermark prometheus.Gauge
}

// New creates the metrics and registers them, with the Go and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "listing",
			Name:      "runs_total",
			Help:      "Listing runs by outcome.",
		}, []string{"outcome"}),
		Entries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "listing",
			Name:      "entries_emitted_total",
			Help:      "Entries committed to the sink.",
		}),
		Pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "listing",
			Name:      "pages_total",
			Help:      "Listing pages fetched from the remote store.",
		}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "listing",
			Name:      "flushes_total",
			Help:      "Batches committed to the sink.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "uploads_total",
			Help:      "Uploads by outcome.",
		}, []string{"outcome"}),
		Watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "watermark_seconds",
			Help:      "High-water mark of the last listing run as a Unix timestamp.",
		}),
	}
	m.registry.MustRegister(m.Collectors()...)
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Collectors returns all metrics as collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{m.Runs, m.Entries, m.Pages, m.Flushes, m.Uploads, m.Watermark}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PageFetched(int) {
	if m == nil {
		return
	}
	m.Pages.Inc()
}

func (m *Metrics) BatchCommitted(records int) {
	if m == nil {
		return
	}
	m.Flushes.Inc()
	m.Entries.Add(float64(records))
}

func (m *Metrics) RunFinished(outcome string, wm watermark.Watermark) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
	if !wm.IsZero() {
		m.Watermark.Set(float64(wm.HighWaterMark.UnixMilli()) / 1000)
	}
}

func (m *Metrics) UploadFinished(outcome string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(outcome).Inc()
}
