package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "svcmarket"

// Metrics holds the marketplace collectors, registered on their own registry
// so several instances can coexist in tests.
type Metrics struct {
	Registry      *prometheus.Registry
	Operations    *prometheus.CounterVec
	Listed        prometheus.Gauge
	PublishErrors prometheus.Counter
	EventsStored  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by name and result code.",
		}, []string{"op", "code"}),
		Listed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listed_services",
			Help:      "Current value of the global listed-service counter.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Committed operations whose event could not be published.",
		}),
		EventsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_stored_total",
			Help:      "Ledger events written to the event log by the worker.",
		}),
	}
	m.Registry.MustRegister(m.Operations, m.Listed, m.PublishErrors, m.EventsStored)
	return m
}

func (m *Metrics) ObserveOp(op, code string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, code).Inc()
}

func (m *Metrics) SetListed(v int64) {
	if m == nil {
		return
	}
	m.Listed.Set(float64(v))
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishErrors.Inc()
}

func (m *Metrics) EventStored() {
	if m == nil {
		return
	}
	m.EventsStored.Inc()
}
