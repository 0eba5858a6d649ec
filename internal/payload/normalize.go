package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Normalize rewrites single-quoted string literals as double-quoted JSON
// strings. Double-quoted strings pass through untouched, so apostrophes inside
// them survive.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 8)

	inDouble, inSingle, escaped := false, false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
		case inSingle:
			if escaped {
				escaped = false
				if c != '\'' {
					b.WriteByte('\\')
				}
				b.WriteByte(c)
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '\'':
				b.WriteByte('"')
				inSingle = false
			case '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		default:
			switch c {
			case '"':
				inDouble = true
				b.WriteByte(c)
			case '\'':
				inSingle = true
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// decodeStrict normalizes raw and decodes exactly one JSON value into v
func decodeStrict(raw string, v interface{}) error {
	dec := json.NewDecoder(strings.NewReader(Normalize(raw)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		return fmt.Errorf("%w: trailing data after value", ErrMalformedPayload)
	}
	return nil
}

// normalizeNumbers turns json.Number into int64 when integral, else float64
func normalizeNumbers(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}

func decodeValue(data json.RawMessage) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}
