// Package mqtt implements broker.Transport on top of the Eclipse Paho client.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-dispatcher/config"
	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
)

// Client implements broker.Transport for MQTT
type Client struct {
	logger  *logger.Logger
	config  *config.MQTTConfig
	metrics *metrics.Metrics
	stats   broker.Stats

	conn ConnectionManager
	sub  SubscriptionManager
	pub  Publisher

	mu sync.RWMutex
}

var _ broker.Transport = (*Client)(nil)

// NewClient creates an MQTT transport. No connection is attempted until
// Connect is called.
func NewClient(cfg *config.MQTTConfig, log *logger.Logger, metricsService *metrics.Metrics) (*Client, error) {
	c := newClient(cfg, log, metricsService)

	conn, err := NewConnectionManager(c)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	c.wire(conn)

	return c, nil
}

// NewClientWithMQTT creates a transport around an existing paho client
func NewClientWithMQTT(cfg *config.MQTTConfig, log *logger.Logger, metricsService *metrics.Metrics, client mqtt.Client) *Client {
	c := newClient(cfg, log, metricsService)
	c.wire(NewConnectionManagerWithClient(c, client))
	return c
}

func newClient(cfg *config.MQTTConfig, log *logger.Logger, metricsService *metrics.Metrics) *Client {
	return &Client{
		logger:  log,
		config:  cfg,
		metrics: metricsService,
		stats: broker.Stats{
			LastReconnect: time.Now(),
		},
	}
}

// wire builds the publisher and subscription manager on top of conn
func (c *Client) wire(conn ConnectionManager) {
	c.conn = conn
	c.pub = NewPublisher(c)
	c.sub = NewSubscriptionManager(c)
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
