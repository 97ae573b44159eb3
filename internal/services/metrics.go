package services

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "dispatch"

// Metrics holds the dispatch counters and gauges on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Assignments          *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	OpenProblems         *prometheus.GaugeVec
	UrgentAlerts         prometheus.Counter
	IngestEvents         *prometheus.CounterVec
	SettlementsGenerated prometheus.Counter
	BreakerState         *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assignments_total",
			Help:      "Assignment attempts by order source and result",
		}, []string{"source", "result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transitions_total",
			Help:      "Status transition attempts by target status and result",
		}, []string{"to", "result"}),
		OpenProblems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "open_problems",
			Help:      "Open orders currently flagged by the monitor",
		}, []string{"kind"}),
		UrgentAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "urgent_alerts_total",
			Help:      "Urgent unassigned alerts sent",
		}),
		IngestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_events_total",
			Help:      "Order change events consumed by result",
		}, []string{"result"}),
		SettlementsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "settlements_generated_total",
			Help:      "Settlements persisted",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}

	registry.MustRegister(
		m.Assignments,
		m.Transitions,
		m.OpenProblems,
		m.UrgentAlerts,
		m.IngestEvents,
		m.SettlementsGenerated,
		m.BreakerState,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, domain := range domainErrors {
		if errors.Is(err, domain) {
			return labelFor(domain)
		}
	}
	return "error"
}

func labelFor(err error) string {
	switch err {
	case ErrPreconditionFailed:
		return "precondition_failed"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrIncompleteCompletionData:
		return "incomplete_completion"
	case ErrAddressUnresolved:
		return "address_unresolved"
	case ErrDataStoreUnavailable:
		return "data_store_unavailable"
	case ErrNotFound:
		return "not_found"
	case ErrForbiddenActor:
		return "forbidden"
	case ErrSettlementConflict:
		return "conflict"
	case ErrInvalidPeriod:
		return "invalid_period"
	case ErrPhotoUploadFailed:
		return "photo_upload_failed"
	}
	return "error"
}
