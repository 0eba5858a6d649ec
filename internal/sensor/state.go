// Package sensor holds the latest sensor snapshot of a session.
package sensor

import (
	"sync"

	"mqtt-dispatcher/internal/payload"
)

// State is a replaceable snapshot of named sensor readings with a dirty flag
// for polling consumers. The zero value is ready to use.
type State struct {
	mu       sync.RWMutex
	readings payload.Readings
	updated  bool
}

// NewState creates an empty sensor state
func NewState() *State {
	return &State{readings: payload.Readings{}}
}

// Replace swaps in a new snapshot wholesale and marks the state updated
func (s *State) Replace(readings payload.Readings) {
	next := copyReadings(readings)

	s.mu.Lock()
	s.readings = next
	s.updated = true
	s.mu.Unlock()
}

// Snapshot returns a copy of the current readings
func (s *State) Snapshot() payload.Readings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyReadings(s.readings)
}

// Updated reports the dirty flag without clearing it
func (s *State) Updated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// ConsumeUpdateFlag returns the dirty flag and clears it
func (s *State) ConsumeUpdateFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := s.updated
	s.updated = false
	return updated
}

// Len returns the number of sensors in the snapshot
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

func copyReadings(in payload.Readings) payload.Readings {
	out := make(payload.Readings, len(in))
	for name, r := range in {
		out[name] = payload.Reading{Type: r.Type, Value: copyValue(r.Value)}
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = copyValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = copyValue(inner)
		}
		return s
	default:
		return v
	}
}
