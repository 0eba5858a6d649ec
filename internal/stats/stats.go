package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// StatsCollector tracks session-wide counters
type StatsCollector struct {
	StartTime         time.Time
	MessagesReceived  uint64
	MessagesDropped   uint64
	SensorUpdates     uint64
	CommandsExecuted  uint64
	InterruptsDrained uint64
	Errors            uint64
	lastUpdate        atomic.Int64
}

// NewStatsCollector creates a new stats collector
func NewStatsCollector() *StatsCollector {
	s := &StatsCollector{StartTime: time.Now()}
	s.touch()
	return s
}

func (s *StatsCollector) touch() {
	s.lastUpdate.Store(time.Now().UnixNano())
}

// IncReceived counts a message taken off the bus
func (s *StatsCollector) IncReceived() {
	atomic.AddUint64(&s.MessagesReceived, 1)
	s.touch()
}

// IncDropped counts a message with an unrecognized topic
func (s *StatsCollector) IncDropped() {
	atomic.AddUint64(&s.MessagesDropped, 1)
	s.touch()
}

// IncSensorUpdates counts a sensor snapshot replacement
func (s *StatsCollector) IncSensorUpdates() {
	atomic.AddUint64(&s.SensorUpdates, 1)
	s.touch()
}

// IncCommands counts a command execution
func (s *StatsCollector) IncCommands() {
	atomic.AddUint64(&s.CommandsExecuted, 1)
	s.touch()
}

// IncInterrupts counts a persisted interrupt record
func (s *StatsCollector) IncInterrupts() {
	atomic.AddUint64(&s.InterruptsDrained, 1)
	s.touch()
}

// IncErrors counts a processing error
func (s *StatsCollector) IncErrors() {
	atomic.AddUint64(&s.Errors, 1)
	s.touch()
}

// GetStats returns current statistics
func (s *StatsCollector) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"uptime":             time.Since(s.StartTime).String(),
		"messages_received":  atomic.LoadUint64(&s.MessagesReceived),
		"messages_dropped":   atomic.LoadUint64(&s.MessagesDropped),
		"sensor_updates":     atomic.LoadUint64(&s.SensorUpdates),
		"commands_executed":  atomic.LoadUint64(&s.CommandsExecuted),
		"interrupts_drained": atomic.LoadUint64(&s.InterruptsDrained),
		"errors":             atomic.LoadUint64(&s.Errors),
		"last_update":        time.Unix(0, s.lastUpdate.Load()),
	}
}

// GetStatsJSON returns stats as JSON
func (s *StatsCollector) GetStatsJSON() ([]byte, error) {
	return json.Marshal(s.GetStats())
}

// CalculateRate returns received messages per second since start
func (s *StatsCollector) CalculateRate() float64 {
	uptime := time.Since(s.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&s.MessagesReceived)) / uptime
}
