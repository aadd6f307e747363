package metrics

import (
	"net/http"
	"time"

	"wisefido-allocator/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ed_allocator"

// Metrics 分配服务的 Prometheus 指标
// 同时实现 allocator.Recorder 和 events.Observer
type Metrics struct {
	registry *prometheus.Registry

	passes             prometheus.Counter
	passDuration       prometheus.Histogram
	skipped            prometheus.Counter
	assignments        *prometheus.CounterVec
	utilization        prometheus.Gauge
	unassignedCritical prometheus.Gauge
	eventsDropped      *prometheus.CounterVec
	sinkFailures       *prometheus.CounterVec
}

// New 创建指标并注册到独立的 registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Total allocation passes executed.",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a single allocation pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_resources_total",
			Help:      "Available resources left unassigned because no compatible patient was waiting.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Resource mutations by kind (auto, manual, status) and resource type.",
		}, []string{"kind", "resource_type"}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "utilization_ratio",
			Help:      "Fraction of resources currently in use.",
		}),
		unassignedCritical: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unassigned_critical_patients",
			Help:      "Critical patients holding no resource.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the dispatcher queue was full.",
		}, []string{"kind"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Event deliveries that failed, by sink.",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.passes,
		m.passDuration,
		m.skipped,
		m.assignments,
		m.utilization,
		m.unassignedCritical,
		m.eventsDropped,
		m.sinkFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回指标 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterQueueLength 注册事件队列长度 gauge
func (m *Metrics) RegisterQueueLength(fn func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queue_length",
		Help:      "Events waiting in the dispatcher queue.",
	}, func() float64 { return float64(fn()) }))
}

func (m *Metrics) ObservePass(duration time.Duration, assigned, skipped int) {
	m.passes.Inc()
	m.passDuration.Observe(duration.Seconds())
	m.skipped.Add(float64(skipped))
}

func (m *Metrics) ObserveAssignment(kind models.AssignmentEventKind, resourceType models.ResourceType) {
	m.assignments.WithLabelValues(string(kind), string(resourceType)).Inc()
}

func (m *Metrics) ObserveTrigger(utilization float64, unassignedCritical int) {
	m.utilization.Set(utilization)
	m.unassignedCritical.Set(float64(unassignedCritical))
}

func (m *Metrics) EventDropped(kind string) {
	m.eventsDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	m.sinkFailures.WithLabelValues(sink).Inc()
}
