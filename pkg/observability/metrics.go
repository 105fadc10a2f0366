package observability

import (
	"net/http"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "strata"

// Stage outcome label values.
const (
	OutcomeComputed = "computed"
	OutcomeReused   = "reused"
	OutcomeFailed   = "failed"
)

// Metrics holds the collectors of one workspace on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	stages     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	lastNodes  prometheus.Gauge
	lastEdges  prometheus.Gauge
	stackDepth *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors. Go runtime and process
// collectors are included so /metrics is useful on its own.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_stages_total",
				Help:      "Pipeline stages by filter kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "filter_evaluation_seconds",
				Help:      "Time spent evaluating a filter on a cache miss.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"kind"},
		),
		lastNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_nodes",
			Help:      "Node count of the most recent stage output.",
		}),
		lastEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_edges",
			Help:      "Edge count of the most recent stage output.",
		}),
		stackDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "filter_stack_depth",
				Help:      "Number of filters in the stack.",
			},
			[]string{"side"},
		),
	}
	m.registry.MustRegister(
		m.stages, m.duration, m.lastNodes, m.lastEdges, m.stackDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, e.g. for tests or extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns pipeline hooks that feed the collectors.
func (m *Metrics) Hooks() domain.PipelineHooks {
	return domain.PipelineHooks{
		OnStageComputed: func(e *domain.StageEvent) {
			m.stages.WithLabelValues(string(e.Kind), OutcomeComputed).Inc()
			m.duration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
			m.observeSize(e)
		},
		OnStageReused: func(e *domain.StageEvent) {
			m.stages.WithLabelValues(string(e.Kind), OutcomeReused).Inc()
			m.observeSize(e)
		},
		OnStageFailed: func(e *domain.StageEvent) {
			m.stages.WithLabelValues(string(e.Kind), OutcomeFailed).Inc()
			m.duration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
		},
	}
}

func (m *Metrics) observeSize(e *domain.StageEvent) {
	m.lastNodes.Set(float64(e.Nodes))
	m.lastEdges.Set(float64(e.Edges))
}

// SetStackDepth records the sizes of the past and future sequences.
func (m *Metrics) SetStackDepth(past, future int) {
	m.stackDepth.WithLabelValues("past").Set(float64(past))
	m.stackDepth.WithLabelValues("future").Set(float64(future))
}
