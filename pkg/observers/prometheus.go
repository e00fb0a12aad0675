package observers

import (
	"net/http"

	"github.com/harunnryd/reliefline/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reliefline"

// PrometheusObserver turns metrics events into prometheus series.
type PrometheusObserver struct {
	registry *prometheus.Registry

	events           *prometheus.CounterVec
	activeCalls      prometheus.Gauge
	callDuration     prometheus.Histogram
	interruptElapsed prometheus.Histogram
	callStatus       *prometheus.CounterVec
}

// NewPrometheusObserver registers its collectors on reg. A nil reg gets a fresh
// registry that also carries the Go runtime and process collectors.
func NewPrometheusObserver(reg *prometheus.Registry) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	p := &PrometheusObserver{
		registry: reg,
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Bridge events by name",
			},
			[]string{"name"},
		),
		activeCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calls_active",
				Help:      "Number of calls currently bridged",
			},
		),
		callDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Duration of bridged calls in seconds",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
		),
		interruptElapsed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "interruption_heard_seconds",
				Help:      "Playback heard by the caller before a barge-in, in seconds",
				Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16},
			},
		),
		callStatus: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "call_status_total",
				Help:      "Telephony status callbacks by normalized status",
			},
			[]string{"status"},
		),
	}
	reg.MustRegister(p.events, p.activeCalls, p.callDuration, p.interruptElapsed, p.callStatus)
	return p
}

func (p *PrometheusObserver) RecordEvent(ev metrics.MetricsEvent) {
	p.events.WithLabelValues(ev.Name).Inc()
	switch ev.Name {
	case metrics.EventCallStarted:
		p.activeCalls.Inc()
	case metrics.EventCallEnded:
		p.activeCalls.Dec()
		p.callDuration.Observe(ev.Value)
	case metrics.EventInterruption:
		p.interruptElapsed.Observe(ev.Value / 1000)
	case metrics.EventCallStatus:
		p.callStatus.WithLabelValues(ev.Tags["status"]).Inc()
	}
}

// Registry returns the underlying prometheus registry.
func (p *PrometheusObserver) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus exposition format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
