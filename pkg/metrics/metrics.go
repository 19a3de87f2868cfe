// Package metrics holds the prometheus collectors exposed by the viewer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry      *prometheus.Registry
	Renders       *prometheus.CounterVec
	RenderSeconds prometheus.Histogram
	RenderErrors  prometheus.Counter
	DatasetRows   prometheus.Gauge
	Uptime        prometheus.GaugeFunc
}

// New registers the viewer collectors on a private registry, next to the
// standard Go and process collectors.
func New() *Metrics {
	start := time.Now()
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Renders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clusterviz_figure_renders_total",
				Help: "Total number of figures rendered, by label column.",
			},
			[]string{"column"},
		),
		RenderSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clusterviz_figure_render_seconds",
				Help:    "Time spent building a figure.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		RenderErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clusterviz_figure_render_errors_total",
				Help: "Total number of figure requests that failed.",
			},
		),
		DatasetRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "clusterviz_dataset_rows",
				Help: "Rows in the dataset table served by the viewer.",
			},
		),
		Uptime: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "clusterviz_uptime_seconds",
				Help: "Viewer uptime in seconds.",
			},
			func() float64 { return time.Since(start).Seconds() },
		),
	}
	m.Registry.MustRegister(
		m.Renders, m.RenderSeconds, m.RenderErrors, m.DatasetRows, m.Uptime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveRender(column string, d time.Duration) {
	m.Renders.WithLabelValues(column).Inc()
	m.RenderSeconds.Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
