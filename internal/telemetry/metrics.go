package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Taskflow/internal/engine"
)

// Metrics — Prometheus метрики выполнения flows.
// Реализует engine.Observer.
type Metrics struct {
	FlowExecutions *prometheus.CounterVec
	FlowDuration   prometheus.Histogram
	FlowsRunning   prometheus.Gauge
	TaskExecutions *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
// nil reg — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FlowExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_flow_executions_total",
			Help: "Flow executions by final state",
		}, []string{"state"}),
		FlowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskflow_flow_duration_seconds",
			Help:    "Flow execution duration",
			Buckets: prometheus.DefBuckets,
		}),
		FlowsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "taskflow_flows_running",
			Help: "Flows currently executing",
		}),
		TaskExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "taskflow_task_executions_total",
			Help: "Task executions by type and state",
		}, []string{"task_type", "state"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskflow_task_duration_seconds",
			Help:    "Task execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
	}
}

// FlowStarted реализует engine.Observer.
func (m *Metrics) FlowStarted(_ context.Context, _ string) {
	m.FlowsRunning.Inc()
}

// TaskFinished реализует engine.Observer.
func (m *Metrics) TaskFinished(_ context.Context, ev engine.TaskEvent) {
	m.TaskExecutions.WithLabelValues(ev.TaskType, ev.State.String()).Inc()
	m.TaskDuration.WithLabelValues(ev.TaskType).Observe(ev.Duration.Seconds())
}

// FlowFinished реализует engine.Observer.
func (m *Metrics) FlowFinished(_ context.Context, ev engine.FlowEvent) {
	m.FlowsRunning.Dec()
	m.FlowExecutions.WithLabelValues(ev.State.String()).Inc()
	m.FlowDuration.Observe(ev.Duration.Seconds())
}
