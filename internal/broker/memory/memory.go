// Package memory is an in-process broker.Transport. Every client created
// from the same Bus sees the others' publishes, which makes it usable for
// dry runs and for wiring tests without a broker.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/logger"
)

// Bus fans published messages out to every subscribed client
type Bus struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{clients: make(map[*Client]struct{})}
}

func (b *Bus) attach(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c] = struct{}{}
}

func (b *Bus) detach(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

func (b *Bus) publish(topic string, payload []byte) {
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		c.deliver(topic, payload)
	}
}

// Client implements broker.Transport against a Bus
type Client struct {
	bus    *Bus
	logger *logger.Logger

	filters   *broker.FilterSet
	handlers  map[string]broker.MessageHandler
	mu        sync.RWMutex
	connected atomic.Bool

	stats      broker.Stats
	lastConnMu sync.RWMutex
}

var _ broker.Transport = (*Client)(nil)

// NewClient creates a client attached to bus on Connect
func NewClient(bus *Bus, log *logger.Logger) *Client {
	return &Client{
		bus:      bus,
		logger:   log,
		filters:  broker.NewFilterSet(),
		handlers: make(map[string]broker.MessageHandler),
	}
}

// Connect implements broker.Transport
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrConnection, err)
	}
	c.bus.attach(c)
	c.connected.Store(true)

	c.lastConnMu.Lock()
	c.stats.LastReconnect = time.Now()
	c.lastConnMu.Unlock()

	c.logger.Debug("attached to in-process bus")
	return nil
}

// Subscribe implements broker.Transport
func (c *Client) Subscribe(topic string, handler broker.MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if !c.connected.Load() {
		return broker.ErrNotConnected
	}
	if err := c.filters.Add(topic); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	return nil
}

// Unsubscribe implements broker.Transport
func (c *Client) Unsubscribe(topic string) error {
	c.filters.Remove(topic)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

// Publish implements broker.Transport
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.connected.Load() {
		return broker.ErrNotConnected
	}
	if err := broker.ValidateTopicName(topic); err != nil {
		atomic.AddUint64(&c.stats.Errors, 1)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	atomic.AddUint64(&c.stats.MessagesPublished, 1)
	c.bus.publish(topic, data)
	return nil
}

func (c *Client) deliver(topic string, payload []byte) {
	if !c.connected.Load() {
		return
	}
	for _, filter := range c.filters.Match(topic) {
		c.mu.RLock()
		handler := c.handlers[filter]
		c.mu.RUnlock()
		if handler == nil {
			continue
		}
		atomic.AddUint64(&c.stats.MessagesReceived, 1)
		handler(topic, payload)
	}
}

// IsConnected implements broker.Transport
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Disconnect implements broker.Transport
func (c *Client) Disconnect() {
	c.connected.Store(false)
	c.bus.detach(c)
}

// GetStats implements broker.Transport
func (c *Client) GetStats() broker.Stats {
	c.lastConnMu.RLock()
	last := c.stats.LastReconnect
	c.lastConnMu.RUnlock()

	return broker.Stats{
		MessagesReceived:  atomic.LoadUint64(&c.stats.MessagesReceived),
		MessagesPublished: atomic.LoadUint64(&c.stats.MessagesPublished),
		LastReconnect:     last,
		Errors:            atomic.LoadUint64(&c.stats.Errors),
	}
}
