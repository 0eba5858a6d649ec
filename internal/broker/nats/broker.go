// Package nats implements broker.Transport on a NATS server. Topics are kept
// in MQTT form at the boundary and mapped to NATS subjects internally.
package nats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-dispatcher/config"
	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
)

// Client implements broker.Transport for NATS
type Client struct {
	logger  *logger.Logger
	config  *config.NATSConfig
	metrics *metrics.Metrics
	stats   broker.Stats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher

	mu sync.RWMutex
}

var _ broker.Transport = (*Client)(nil)

// NewClient creates a NATS transport. No connection is attempted until
// Connect is called.
func NewClient(cfg *config.NATSConfig, log *logger.Logger, metricsService *metrics.Metrics) *Client {
	c := &Client{
		logger:  log,
		config:  cfg,
		metrics: metricsService,
		stats: broker.Stats{
			LastReconnect: time.Now(),
		},
	}

	c.conn = NewConnectionManager(c)
	c.pub = NewPublisher(c, c.conn)
	c.sub = NewSubscriptionManager(c, c.conn)

	return c
}

// Connect implements broker.Transport
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Subscribe implements broker.Transport
func (c *Client) Subscribe(topic string, handler broker.MessageHandler) error {
	return c.sub.Subscribe(topic, handler)
}

// Unsubscribe implements broker.Transport
func (c *Client) Unsubscribe(topic string) error {
	return c.sub.Unsubscribe(topic)
}

// Publish implements broker.Transport
func (c *Client) Publish(topic string, payload []byte) error {
	return c.pub.Publish(topic, payload)
}

// IsConnected implements broker.Transport
func (c *Client) IsConnected() bool {
	return c.conn.IsConnected()
}

// Disconnect implements broker.Transport
func (c *Client) Disconnect() {
	if err := c.sub.UnsubscribeAll(); err != nil {
		c.logger.Warn("failed to drop subscriptions", "error", err)
	}
	c.conn.Disconnect()
}

// GetStats implements broker.Transport
func (c *Client) GetStats() broker.Stats {
	c.mu.RLock()
	lastReconnect := c.stats.LastReconnect
	c.mu.RUnlock()

	return broker.Stats{
		MessagesReceived:  atomic.LoadUint64(&c.stats.MessagesReceived),
		MessagesPublished: atomic.LoadUint64(&c.stats.MessagesPublished),
		LastReconnect:     lastReconnect,
		Errors:            atomic.LoadUint64(&c.stats.Errors),
	}
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (c *Client) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}
