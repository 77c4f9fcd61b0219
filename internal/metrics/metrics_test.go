package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"pressiotrack/internal/models"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ReadingClassified(models.StatusHigh)
	m.ReadingClassified(models.StatusHigh)
	m.Notification("hypertension_alert", ResultFailed)
	m.AssociationEvent("confirmed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readingsClassified.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("hypertension_alert", ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.associations.WithLabelValues("confirmed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ReadingClassified(models.StatusLow)
		m.Notification("x", ResultSent)
		m.AssociationEvent("requested")
	})
}
