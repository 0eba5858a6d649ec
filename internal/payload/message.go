// Package payload holds the inbound message type and the structural decoders
// for sensor and interrupt payloads.
package payload

import (
	"errors"
	"time"
)

// ErrMalformedPayload marks a payload that failed structural decoding
var ErrMalformedPayload = errors.New("malformed payload")

// Message is a raw inbound message as delivered by the transport
type Message struct {
	Topic      string
	Payload    string
	ReceivedAt time.Time
}

// NewMessage copies the transport's payload bytes into an immutable message
func NewMessage(topic string, payload []byte) Message {
	return Message{
		Topic:      topic,
		Payload:    string(payload),
		ReceivedAt: time.Now(),
	}
}
