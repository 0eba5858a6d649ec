package nats

import (
	"fmt"
	"sync/atomic"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/metrics"
)

// PublisherImpl implements the Publisher interface for NATS
type PublisherImpl struct {
	client *Client
	conn   ConnectionManager
}

// NewPublisher creates a new NATS publisher
func NewPublisher(client *Client, conn ConnectionManager) *PublisherImpl {
	return &PublisherImpl{
		client: client,
		conn:   conn,
	}
}

// Publish sends a message to a specific topic
func (p *PublisherImpl) Publish(topic string, payload []byte) error {
	if !p.conn.IsConnected() {
		return broker.ErrNotConnected
	}

	subject := ToNATSSubject(topic)

	if err := p.conn.GetConnection().Publish(subject, payload); err != nil {
		atomic.AddUint64(&p.client.stats.Errors, 1)
		p.client.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("error")
		})
		p.client.logger.Error("failed to publish message",
			"error", err,
			"topic", topic,
			"subject", subject)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	atomic.AddUint64(&p.client.stats.MessagesPublished, 1)
	p.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("success")
	})

	p.client.logger.Debug("published message",
		"topic", topic,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}
