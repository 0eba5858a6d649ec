// Package broker defines the transport boundary shared by the MQTT, NATS and
// in-process bus clients.
package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrConnection is returned when a transport cannot reach its broker
var ErrConnection = errors.New("broker connection error")

// ErrNotConnected is returned by operations attempted before Connect
var ErrNotConnected = errors.New("not connected to broker")

// MessageHandler receives the topic and raw payload of every delivery
type MessageHandler func(topic string, payload []byte)

// Transport is a publish/subscribe bus client
type Transport interface {
	// Connect establishes the broker connection
	Connect(ctx context.Context) error

	// Subscribe registers handler for a topic filter
	Subscribe(topic string, handler MessageHandler) error

	// Unsubscribe releases a topic filter registered with Subscribe
	Unsubscribe(topic string) error

	// Publish sends a payload to a topic
	Publish(topic string, payload []byte) error

	// IsConnected returns the current connection state
	IsConnected() bool

	// Disconnect gracefully closes the connection
	Disconnect()

	// GetStats returns transport statistics
	GetStats() Stats
}

// Stats holds statistics for a transport
type Stats struct {
	MessagesReceived  uint64
	MessagesPublished uint64
	LastReconnect     time.Time
	Errors            uint64
}

// NewTLSConfig loads a client certificate and CA pool for broker TLS
func NewTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
