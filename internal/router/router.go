// Package router classifies inbound messages by topic and hands them to the
// sensor, command or interrupt path.
package router

import (
	"context"
	"fmt"
	"sync/atomic"

	"mqtt-dispatcher/internal/command"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/payload"
	"mqtt-dispatcher/internal/sensor"
	"mqtt-dispatcher/internal/stats"
	"mqtt-dispatcher/internal/topic"
)

// Interrupts is the interrupt path as seen by the router
type Interrupts interface {
	Enqueue(rows *payload.RowSet)
	Drain(ctx context.Context) error
	Notify()
}

// Router dispatches messages to the three processing paths
type Router struct {
	sensors    *sensor.State
	executor   command.Executor
	interrupts Interrupts
	inline     bool

	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	dispatched atomic.Uint64
}

// Options configures a Router
type Options struct {
	// InlineDrain drains one interrupt synchronously after each enqueue
	// instead of waking the interrupt consumer
	InlineDrain bool
}

// NewRouter creates a router
func NewRouter(sensors *sensor.State, exec command.Executor, interrupts Interrupts, opts Options, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Router {
	if st == nil {
		st = stats.NewStatsCollector()
	}
	return &Router{
		sensors:    sensors,
		executor:   exec,
		interrupts: interrupts,
		inline:     opts.InlineDrain,
		logger:     log,
		metrics:    m,
		stats:      st,
	}
}

// Dispatch routes msg and returns the route it took. Unrecognized topics are
// dropped without error. A returned error means the message was dropped.
func (r *Router) Dispatch(ctx context.Context, msg payload.Message) (topic.Route, error) {
	route := topic.Classify(msg.Topic)
	r.dispatched.Add(1)

	var err error
	switch route {
	case topic.RouteSensor:
		err = r.handleSensor(msg)
	case topic.RouteCommand:
		err = r.handleCommand(ctx, msg)
	case topic.RouteInterrupt:
		err = r.handleInterrupt(ctx, msg)
	default:
		r.stats.IncDropped()
		r.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncMessagesTotal(route.String(), "dropped")
		})
		r.logger.Debug("dropping message on unrecognized topic", "topic", msg.Topic)
		return route, nil
	}

	status := "success"
	if err != nil {
		status = "error"
		r.stats.IncErrors()
	}
	r.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncMessagesTotal(route.String(), status)
	})

	return route, err
}

// Dispatched returns the number of messages seen by Dispatch
func (r *Router) Dispatched() uint64 {
	return r.dispatched.Load()
}

func (r *Router) handleSensor(msg payload.Message) error {
	readings, err := payload.DecodeReadings(msg.Payload)
	if err != nil {
		r.logger.Error("failed to decode sensor readings",
			"topic", msg.Topic,
			"error", err)
		return fmt.Errorf("sensor message on %s: %w", msg.Topic, err)
	}

	r.sensors.Replace(readings)
	r.stats.IncSensorUpdates()
	r.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetSensorsActive(float64(len(readings)))
	})
	r.logger.Debug("sensor snapshot replaced",
		"topic", msg.Topic,
		"sensors", len(readings))

	return nil
}

func (r *Router) handleCommand(ctx context.Context, msg payload.Message) error {
	result, err := r.executor.Execute(ctx, command.Input{Raw: msg.Payload})
	if err != nil {
		r.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncCommandsTotal("command", "error")
		})
		r.logger.Error("command execution failed",
			"topic", msg.Topic,
			"error", err)
		return fmt.Errorf("command on %s: %w", msg.Topic, err)
	}

	r.stats.IncCommands()
	r.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncCommandsTotal("command", "success")
	})
	r.logger.Info("command executed",
		"topic", msg.Topic,
		"id", result.ID,
		"status", result.Status,
		"output", result.Output)

	return nil
}

func (r *Router) handleInterrupt(ctx context.Context, msg payload.Message) error {
	rows, err := payload.DecodeRowSet(msg.Payload)
	if err != nil {
		r.logger.Error("failed to decode interrupt record",
			"topic", msg.Topic,
			"error", err)
		return fmt.Errorf("interrupt message on %s: %w", msg.Topic, err)
	}

	r.interrupts.Enqueue(rows)
	r.logger.Debug("interrupt queued",
		"topic", msg.Topic,
		"rows", rows.Len())

	if !r.inline {
		r.interrupts.Notify()
		return nil
	}

	if err := r.interrupts.Drain(ctx); err != nil {
		r.logger.Error("failed to drain interrupt",
			"topic", msg.Topic,
			"error", err)
		return fmt.Errorf("interrupt drain: %w", err)
	}
	return nil
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (r *Router) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}
