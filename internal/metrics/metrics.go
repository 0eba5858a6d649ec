// Package metrics exposes Prometheus instrumentation for the dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all dispatcher collectors
type Metrics struct {
	messagesTotal    *prometheus.CounterVec
	interruptsTotal  *prometheus.CounterVec
	commandsTotal    *prometheus.CounterVec
	publishTotal     *prometheus.CounterVec
	drainDuration    prometheus.Histogram
	queueDepth       *prometheus.GaugeVec
	connectionStatus prometheus.Gauge
	reconnectsTotal  prometheus.Counter
	sensorsActive    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_messages_total",
			Help: "Inbound messages by route and status.",
		}, []string{"route", "status"}),
		interruptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_interrupts_drained_total",
			Help: "Interrupt records drained by outcome.",
		}, []string{"status"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_commands_total",
			Help: "Command executions by source and status.",
		}, []string{"source", "status"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatcher_publish_total",
			Help: "Outbound publishes by status.",
		}, []string{"status"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatcher_drain_duration_seconds",
			Help:    "Time to execute and persist one interrupt record.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatcher_queue_depth",
			Help: "Items waiting in each ordered queue.",
		}, []string{"queue"}),
		connectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_broker_connected",
			Help: "1 when the broker connection is up.",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_broker_reconnects_total",
			Help: "Broker reconnection attempts.",
		}),
		sensorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_sensors_active",
			Help: "Sensors in the current snapshot.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{
		m.messagesTotal,
		m.interruptsTotal,
		m.commandsTotal,
		m.publishTotal,
		m.drainDuration,
		m.queueDepth,
		m.connectionStatus,
		m.reconnectsTotal,
		m.sensorsActive,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// IncMessagesTotal counts an inbound message
func (m *Metrics) IncMessagesTotal(route, status string) {
	m.messagesTotal.WithLabelValues(route, status).Inc()
}

// IncInterruptsTotal counts a drained interrupt record
func (m *Metrics) IncInterruptsTotal(status string) {
	m.interruptsTotal.WithLabelValues(status).Inc()
}

// IncCommandsTotal counts a command execution
func (m *Metrics) IncCommandsTotal(source, status string) {
	m.commandsTotal.WithLabelValues(source, status).Inc()
}

// IncPublishTotal counts an outbound publish
func (m *Metrics) IncPublishTotal(status string) {
	m.publishTotal.WithLabelValues(status).Inc()
}

// ObserveDrainDuration records how long a drain took
func (m *Metrics) ObserveDrainDuration(seconds float64) {
	m.drainDuration.Observe(seconds)
}

// SetQueueDepth sets the current depth of a named queue
func (m *Metrics) SetQueueDepth(queue string, depth float64) {
	m.queueDepth.WithLabelValues(queue).Set(depth)
}

// SetConnectionStatus sets the broker connection gauge
func (m *Metrics) SetConnectionStatus(connected bool) {
	if connected {
		m.connectionStatus.Set(1)
		return
	}
	m.connectionStatus.Set(0)
}

// IncReconnects counts a reconnection attempt
func (m *Metrics) IncReconnects() {
	m.reconnectsTotal.Inc()
}

// SetSensorsActive sets the number of sensors in the snapshot
func (m *Metrics) SetSensorsActive(n float64) {
	m.sensorsActive.Set(n)
}
