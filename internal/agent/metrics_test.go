package agent

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ranstack/oai-ue-operator/internal/controller"
)

func TestSetStatusIsExclusive(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetStatus(controller.StatusBlocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitStatus.WithLabelValues("blocked")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UnitStatus.WithLabelValues("active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UnitStatus.WithLabelValues("waiting")))

	m.SetStatus(controller.StatusActive)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UnitStatus.WithLabelValues("blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitStatus.WithLabelValues("active")))
}

func TestMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Reconciles.WithLabelValues(string(TriggerConfigChanged)).Inc()
	m.Restarts.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restarts))
}
