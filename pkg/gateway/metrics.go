package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the gateway counters exposed on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	FramesTx       prometheus.Counter
	FramesRx       prometheus.Counter
	DrainBytes     prometheus.Counter
	ReportTotal    *prometheus.CounterVec // labels: result=ok|timeout|error
	ReportDuration prometheus.Histogram
	SampleSets     prometheus.Counter
	Commands       *prometheus.CounterVec // labels: op, result=ok|error
}

// NewMetrics builds a registry with runtime collectors and the
// gateway counters registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		Registry: reg,
		FramesTx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "m16_frames_tx_total",
			Help: "Frames transmitted to the modem.",
		}),
		FramesRx: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "m16_frames_rx_total",
			Help: "Frames decoded from the modem.",
		}),
		DrainBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "m16_drain_bytes_total",
			Help: "Bytes drained off the serial link.",
		}),
		ReportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m16_report_requests_total",
			Help: "Diagnostic report requests by result.",
		}, []string{"result"}),
		ReportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "m16_report_duration_seconds",
			Help:    "Time to collect one diagnostic report.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 6),
		}),
		SampleSets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "m16_sample_sets_total",
			Help: "Completed unit sensor poll exchanges.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m16_commands_total",
			Help: "Modem commands executed by op and result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(
		m.FramesTx, m.FramesRx, m.DrainBytes,
		m.ReportTotal, m.ReportDuration,
		m.SampleSets, m.Commands,
	)
	return m
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
