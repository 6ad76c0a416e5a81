package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// MetricsConfig holds configuration for the workflow metrics
type MetricsConfig struct {
	Namespace string
	Subsystem string
	Registry  prometheus.Registerer
}

// Metrics turns engine events into Prometheus series
type Metrics struct {
	events           *prometheus.CounterVec
	instancesStarted *prometheus.CounterVec
	instancesClosed  *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	escalations      prometheus.Counter
	timeouts         prometheus.Counter
	duration         *prometheus.HistogramVec
	activeInstances  prometheus.Gauge
}

// NewMetrics registers the workflow metrics with the configured registry
func NewMetrics(cfg *MetricsConfig) *Metrics {
	if cfg == nil {
		cfg = &MetricsConfig{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "approval"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "workflow"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(cfg.Registry)
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help}
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(counterOpts(name, help), labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(counterOpts(name, help))
	}

	return &Metrics{
		events:           counterVec("events_total", "Engine events published, by type", "type"),
		instancesStarted: counterVec("instances_started_total", "Workflow instances created", "object_type"),
		instancesClosed:  counterVec("instances_finished_total", "Workflow instances that reached a terminal status", "object_type", "status"),
		decisions:        counterVec("approvals_total", "Approval actions recorded on step instances", "action"),
		escalations:      counter("escalations_total", "Expired step instances escalated to a manager"),
		timeouts:         counter("timeouts_total", "Expired step instances auto-rejected or logged"),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "instance_duration_seconds",
			Help:      "Time from instance creation to its terminal status",
			// one minute up to roughly two weeks
			Buckets: prometheus.ExponentialBuckets(60, 4, 8),
		}, []string{"object_type", "status"}),
		activeInstances: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_instances",
			Help:      "Instances created minus instances finished since process start",
		}),
	}
}

// Register subscribes the metrics to every engine event
func (m *Metrics) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("prometheus-metrics", m.Handle)
}

// Handle records one event
func (m *Metrics) Handle(ctx context.Context, evt *event.Event) error {
	m.events.WithLabelValues(evt.Type.String()).Inc()

	switch evt.Type {
	case event.TypeInstanceCreated:
		m.instancesStarted.WithLabelValues(evt.GetPayloadString("object_type")).Inc()
		m.activeInstances.Inc()
	case event.TypeInstanceCompleted, event.TypeInstanceRejected, event.TypeInstanceCancelled:
		objectType := evt.GetPayloadString("object_type")
		status := terminalStatus(evt.Type)
		m.instancesClosed.WithLabelValues(objectType, status).Inc()
		m.duration.WithLabelValues(objectType, status).Observe(evt.GetPayloadFloat("duration_seconds"))
		m.activeInstances.Dec()
	case event.TypeApprovalRecorded:
		m.decisions.WithLabelValues(evt.GetPayloadString("action")).Inc()
	case event.TypeApprovalEscalated:
		m.escalations.Inc()
	case event.TypeApprovalTimedOut:
		m.timeouts.Inc()
	}
	return nil
}

func terminalStatus(t event.Type) string {
	switch t {
	case event.TypeInstanceCompleted:
		return entity.InstanceStatusCompleted
	case event.TypeInstanceRejected:
		return entity.InstanceStatusRejected
	default:
		return entity.InstanceStatusCancelled
	}
}
