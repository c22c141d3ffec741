// Package metrics exposes Prometheus collectors for the intake and execution pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/dukex/sequences/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sequences"

// Collector owns a private registry. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	TriggerEvents  *prometheus.CounterVec
	IntakeOutcomes *prometheus.CounterVec
	StepAttempts   *prometheus.CounterVec
	StepDuration   *prometheus.HistogramVec
	RunsCompleted  *prometheus.CounterVec
	RunsRecovered  prometheus.Counter
}

func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		TriggerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_events_total",
			Help:      "Trigger events entering each lifecycle status",
		}, []string{"status"}),
		IntakeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_outcomes_total",
			Help:      "Trigger activations by intake outcome",
		}, []string{"source", "outcome"}),
		StepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Integration operation attempts by result",
		}, []string{"operation", "result"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of finished steps including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Workflow runs reaching a terminal status",
		}, []string{"status"}),
		RunsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_recovered_total",
			Help:      "Stale runs put back on the queue by the recovery sweep",
		}),
	}

	reg.MustRegister(
		c.TriggerEvents,
		c.IntakeOutcomes,
		c.StepAttempts,
		c.StepDuration,
		c.RunsCompleted,
		c.RunsRecovered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry is exposed for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) EventTransitioned(status models.EventStatus) {
	if c == nil {
		return
	}

	c.TriggerEvents.WithLabelValues(string(status)).Inc()
}

func (c *Collector) IntakeOutcome(source models.EventSource, outcome string) {
	if c == nil {
		return
	}

	c.IntakeOutcomes.WithLabelValues(string(source), outcome).Inc()
}

func (c *Collector) StepAttempt(operation, result string) {
	if c == nil {
		return
	}

	c.StepAttempts.WithLabelValues(operation, result).Inc()
}

func (c *Collector) StepFinished(operation string, status models.StepStatus, took time.Duration) {
	if c == nil {
		return
	}

	c.StepDuration.WithLabelValues(operation, string(status)).Observe(took.Seconds())
}

func (c *Collector) RunFinished(status models.RunStatus) {
	if c == nil {
		return
	}

	c.RunsCompleted.WithLabelValues(string(status)).Inc()
}

func (c *Collector) RunRecovered() {
	if c == nil {
		return
	}

	c.RunsRecovered.Inc()
}
