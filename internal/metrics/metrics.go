// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pressiotrack/internal/models"
)

const namespace = "pressiotrack"

const (
	ResultSent   = "sent"
	ResultFailed = "failed"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	readingsClassified *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	associations       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		readingsClassified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_classified_total",
			Help:      "Readings classified on create or update, by resulting status.",
		}, []string{"status"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outgoing emails by kind and final result.",
		}, []string{"kind", "result"}),
		associations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "caregiver_association_events_total",
			Help:      "Caregiver association protocol events.",
		}, []string{"event"}),
	}
}

func (m *Metrics) ReadingClassified(status models.Status) {
	if m == nil {
		return
	}
	m.readingsClassified.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// AssociationEvent counts requested, confirmed, rejected and revoked links.
func (m *Metrics) AssociationEvent(event string) {
	if m == nil {
		return
	}
	m.associations.WithLabelValues(event).Inc()
}
