package payload

import (
	"encoding/json"
	"fmt"
)

// Reading is one sensor entry of an info payload
type Reading struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// Readings maps sensor name to its latest reading
type Readings map[string]Reading

// DecodeReadings parses an info payload of the form
// {"name": {"type": ..., "value": ...}, ...}. Any deviation fails the whole
// payload; no partial result is returned.
func DecodeReadings(raw string) (Readings, error) {
	var entries map[string]json.RawMessage
	if err := decodeStrict(raw, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: expected an object of sensors", ErrMalformedPayload)
	}

	readings := make(Readings, len(entries))
	for name, data := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
			return nil, fmt.Errorf("%w: sensor %q is not an object", ErrMalformedPayload, name)
		}

		for key := range fields {
			if key != "type" && key != "value" {
				return nil, fmt.Errorf("%w: sensor %q has unknown field %q", ErrMalformedPayload, name, key)
			}
		}

		rawType, ok := fields["type"]
		if !ok {
			return nil, fmt.Errorf("%w: sensor %q is missing type", ErrMalformedPayload, name)
		}
		var sensorType string
		if err := json.Unmarshal(rawType, &sensorType); err != nil {
			return nil, fmt.Errorf("%w: sensor %q type must be a string", ErrMalformedPayload, name)
		}

		rawValue, ok := fields["value"]
		if !ok {
			return nil, fmt.Errorf("%w: sensor %q is missing value", ErrMalformedPayload, name)
		}
		value, err := decodeValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("%w: sensor %q value: %v", ErrMalformedPayload, name, err)
		}

		readings[name] = Reading{Type: sensorType, Value: value}
	}

	return readings, nil
}
