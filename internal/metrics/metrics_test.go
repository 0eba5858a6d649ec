package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	assert.NoError(t, err)
	assert.NotNil(t, m)

	// Registering twice on the same registry must fail
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNewMetricsNilRegistry(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	m.IncMessagesTotal("sensor", "processed")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("sensor", "processed")))
}

func TestMetricsSetConnectionStatus(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetConnectionStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionStatus))
	m.SetConnectionStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connectionStatus))
}

func TestMetricsIncrementCounters(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.IncMessagesTotal("interrupt", "received")
	m.IncMessagesTotal("interrupt", "received")
	m.IncInterruptsTotal("persisted")
	m.IncCommandsTotal("interrupt", "success")
	m.IncPublishTotal("error")
	m.IncReconnects()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesTotal.WithLabelValues("interrupt", "received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interruptsTotal.WithLabelValues("persisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("interrupt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnectsTotal))
}

func TestMetricsGaugesAndHistogram(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetQueueDepth("interrupts", 3)
	m.SetSensorsActive(7)
	m.ObserveDrainDuration(0.25)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("interrupts")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.sensorsActive))
	assert.Equal(t, 1, testutil.CollectAndCount(m.drainDuration))
}
