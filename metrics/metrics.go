// Package metrics defines the prometheus collectors for generation calls and
// workflow steps, registered on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptsmith"

// Metrics groups every collector the service records.
type Metrics struct {
	registry *prometheus.Registry

	generationRequests *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	workflowSteps      *prometheus.CounterVec
}

// New creates the collectors and registers them, with Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Generation calls by provider, model and outcome (ok or error kind).",
		}, []string{"provider", "model", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of generation calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"provider", "model"}),
		workflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Workflow steps by flow, step and outcome.",
		}, []string{"flow", "step", "outcome"}),
	}
	m.registry.MustRegister(
		m.generationRequests,
		m.generationDuration,
		m.workflowSteps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveGeneration records one generation call. outcome is "ok" or an error kind.
func (m *Metrics) ObserveGeneration(provider, model, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationRequests.WithLabelValues(provider, model, outcome).Inc()
	m.generationDuration.WithLabelValues(provider, model).Observe(elapsed.Seconds())
}

// ObserveStep records one workflow step result.
func (m *Metrics) ObserveStep(flow, step, outcome string) {
	if m == nil {
		return
	}
	m.workflowSteps.WithLabelValues(flow, step, outcome).Inc()
}
