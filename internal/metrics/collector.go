// Package metrics holds the bridge's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbridge"

// Registry holds every bridge metric on its own prometheus.Registry.
type Registry struct {
	registry *prometheus.Registry

	// Inbound events
	EventsTotal   *prometheus.CounterVec
	EventsIgnored prometheus.Counter
	DecodeErrors  prometheus.Counter

	// Backend
	BackendCalls   prometheus.Counter
	BackendErrors  prometheus.Counter
	BackendLatency prometheus.Histogram

	// Session and delivery
	HistoryTurns  prometheus.Gauge
	RepliesSent   prometheus.Counter
	SampledFrames prometheus.Histogram
}

// NewRegistry creates a Registry with all bridge metrics registered, plus
// the Go runtime and process collectors.
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()
	start := time.Now()

	r := &Registry{
		registry: registry,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Inbound events by kind",
			},
			[]string{"kind"},
		),
		EventsIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Inbound events with an unsupported kind",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Media payloads that failed to decode",
		}),
		BackendCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Generative backend requests",
		}),
		BackendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed or timed-out backend requests",
		}),
		BackendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Backend request latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		HistoryTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_turns",
			Help:      "Turns currently held in the session",
		}),
		RepliesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Replies handed to a channel",
		}),
		SampledFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "video_frames",
			Help:      "Frames sampled per video",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		}),
	}

	registry.MustRegister(
		r.EventsTotal,
		r.EventsIgnored,
		r.DecodeErrors,
		r.BackendCalls,
		r.BackendErrors,
		r.BackendLatency,
		r.HistoryTurns,
		r.RepliesSent,
		r.SampledFrames,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since start in seconds",
		}, func() float64 { return time.Since(start).Seconds() }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Events returns the counter for inbound events of kind.
func (r *Registry) Events(kind string) prometheus.Counter {
	return r.EventsTotal.WithLabelValues(kind)
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Collector is the process-wide registry. The package-level variables below
// point into it so call sites stay short.
var Collector = NewRegistry()

var (
	EventsIgnored  = Collector.EventsIgnored
	DecodeErrors   = Collector.DecodeErrors
	BackendCalls   = Collector.BackendCalls
	BackendErrors  = Collector.BackendErrors
	BackendLatency = Collector.BackendLatency
	HistoryTurns   = Collector.HistoryTurns
	RepliesSent    = Collector.RepliesSent
	SampledFrames  = Collector.SampledFrames
)

// Events returns the process-wide counter for inbound events of kind.
func Events(kind string) prometheus.Counter {
	return Collector.Events(kind)
}
