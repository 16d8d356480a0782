// Package metrics provides Prometheus instrumentation for agentchain runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements runner.Recorder using Prometheus metrics.
type Collector struct {
	registry prometheus.Gatherer

	runsStarted   *prometheus.CounterVec
	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  *prometheus.GaugeVec
	eventsTotal   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	failuresTotal *prometheus.CounterVec
}

// NewCollector registers the agentchain collectors on reg. A nil reg uses a
// fresh private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		runsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentchain_runs_started_total",
				Help: "Total number of runs started by app",
			},
			[]string{"app"},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentchain_runs_finished_total",
				Help: "Total number of finished runs by app and status",
			},
			[]string{"app", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentchain_run_duration_seconds",
				Help:    "Duration of runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"app", "status"},
		),
		runsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentchain_runs_in_flight",
				Help: "Number of runs currently executing",
			},
			[]string{"app"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentchain_events_total",
				Help: "Total number of events emitted by author",
			},
			[]string{"app", "author"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentchain_stage_duration_seconds",
				Help:    "Duration of leaf stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"app", "stage"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentchain_failures_total",
				Help: "Total number of failure events by error code",
			},
			[]string{"app", "code"},
		),
	}
}

// RunStarted records the start of a run.
func (c *Collector) RunStarted(app string) {
	c.runsStarted.WithLabelValues(app).Inc()
	c.runsInFlight.WithLabelValues(app).Inc()
}

// RunFinished records the end of a run.
func (c *Collector) RunFinished(app, status string, d time.Duration) {
	c.runsInFlight.WithLabelValues(app).Dec()
	c.runsFinished.WithLabelValues(app, status).Inc()
	c.runDuration.WithLabelValues(app, status).Observe(d.Seconds())
}

// EventProcessed records an event passing through the runner. Partial
// events are not counted.
func (c *Collector) EventProcessed(app string, ev core.Event) {
	if ev.IsPartial() {
		return
	}

	c.eventsTotal.WithLabelValues(app, ev.Author).Inc()

	if ev.IsError() {
		c.failuresTotal.WithLabelValues(app, ev.ErrorCode).Inc()
	}

	if raw, ok := ev.CustomMetadata["duration_ms"]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.stageDuration.WithLabelValues(app, ev.Author).Observe((time.Duration(ms) * time.Millisecond).Seconds())
		}
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
