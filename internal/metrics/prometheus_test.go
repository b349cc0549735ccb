package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())

	m.RecordDefinition("Node", true)
	m.RecordDefinition("Node", false)
	m.RecordDefinition("Node", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DefinitionsTotal.WithLabelValues("Node", ScopeRoot)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DefinitionsTotal.WithLabelValues("Node", ScopeLocal)))

	m.RecordScopePush(-1)
	assert.Equal(t, -1.0, testutil.ToFloat64(m.ScopeDepth))

	m.RecordScopePop(0.001, 0, 2, 9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScopePopsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TablesDroppedTotal))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.KeysDeletedOnPopTotal))

	m.RecordEvaluation(ResultGround, 0.0001)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues(ResultGround)))

	m.SessionOpened()
	m.SessionClosed("commit")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("commit")))

	m.UpdateSystemStats(30, 70, 1024, 5)
	assert.Equal(t, 30.0, testutil.ToFloat64(m.DiskUsagePercent))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDefinition("Node", true)
		m.RecordScopePush(-1)
		m.RecordScopePop(0, 0, 0, 0)
		m.RecordEvaluation(ResultError, 0)
		m.SessionOpened()
		m.SessionClosed("abort")
		m.UpdateSystemStats(0, 0, 0, 0)
	})
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a", prometheus.NewRegistry())
		NewMetrics("a", prometheus.NewRegistry())
	})
}
