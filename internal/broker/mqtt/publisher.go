package mqtt

import (
	"fmt"
	"sync/atomic"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/metrics"
)

// PublisherImpl handles MQTT message publishing
type PublisherImpl struct {
	client *Client
	conn   ConnectionManager
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(client *Client) *PublisherImpl {
	return &PublisherImpl{
		client: client,
		conn:   client.conn,
	}
}

// Publish sends a message to a specific topic
func (p *PublisherImpl) Publish(topic string, payload []byte) error {
	if !p.conn.IsConnected() {
		return broker.ErrNotConnected
	}

	token := p.conn.GetClient().Publish(topic, p.client.config.QoS, false, payload)
	if token.Wait() && token.Error() != nil {
		atomic.AddUint64(&p.client.stats.Errors, 1)
		p.client.safeMetricsUpdate(func(m *metrics.Metrics) {
			m.IncPublishTotal("error")
		})
		p.client.logger.Error("failed to publish message",
			"error", token.Error(),
			"topic", topic)
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	atomic.AddUint64(&p.client.stats.MessagesPublished, 1)
	p.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncPublishTotal("success")
	})

	p.client.logger.Debug("published message",
		"topic", topic,
		"payloadSize", len(payload))

	return nil
}
