package mqtt

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/metrics"
)

// SubscriptionManagerImpl implements the SubscriptionManager interface
type SubscriptionManagerImpl struct {
	client   *Client
	conn     ConnectionManager
	handlers map[string]broker.MessageHandler
	mu       sync.RWMutex
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(client *Client) *SubscriptionManagerImpl {
	return &SubscriptionManagerImpl{
		client:   client,
		conn:     client.conn,
		handlers: make(map[string]broker.MessageHandler),
	}
}

// Subscribe subscribes handler to a topic filter. The subscription is
// remembered and restored after reconnects.
func (s *SubscriptionManagerImpl) Subscribe(topic string, handler broker.MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if !s.conn.IsConnected() {
		return broker.ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.subscribe(topic, handler); err != nil {
		return err
	}
	s.handlers[topic] = handler
	return nil
}

func (s *SubscriptionManagerImpl) subscribe(topic string, handler broker.MessageHandler) error {
	qos := s.client.config.QoS
	if token := s.conn.GetClient().Subscribe(topic, qos, s.wrap(handler)); token.Wait() && token.Error() != nil {
		s.client.logger.Error("failed to subscribe to topic",
			"topic", topic,
			"error", token.Error())
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	s.client.logger.Debug("subscribed to topic", "topic", topic, "qos", qos)
	return nil
}

// wrap adapts a transport handler to the paho callback signature
func (s *SubscriptionManagerImpl) wrap(handler broker.MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		s.HandleMessage(msg, handler)
	}
}

// HandleMessage counts a received message and hands it to handler
func (s *SubscriptionManagerImpl) HandleMessage(msg mqtt.Message, handler broker.MessageHandler) {
	atomic.AddUint64(&s.client.stats.MessagesReceived, 1)

	s.client.logger.Debug("received message",
		"topic", msg.Topic(),
		"payloadSize", len(msg.Payload()))

	handler(msg.Topic(), msg.Payload())
}

// Unsubscribe forgets the subscription and releases it on the broker when
// connected
func (s *SubscriptionManagerImpl) Unsubscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.handlers, topic)
	if !s.conn.IsConnected() {
		return nil
	}

	if token := s.conn.GetClient().Unsubscribe(topic); token.Wait() && token.Error() != nil {
		s.client.logger.Error("failed to unsubscribe from topic",
			"topic", topic,
			"error", token.Error())
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, token.Error())
	}
	s.client.logger.Debug("unsubscribed from topic", "topic", topic)
	return nil
}

// ResubscribeAll restores every remembered subscription after a reconnection
func (s *SubscriptionManagerImpl) ResubscribeAll() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for topic, handler := range s.handlers {
		if err := s.subscribe(topic, handler); err != nil {
			atomic.AddUint64(&s.client.stats.Errors, 1)
			s.client.safeMetricsUpdate(func(m *metrics.Metrics) {
				m.IncReconnects() // Track resubscription failures
			})
			return err
		}
	}
	return nil
}

// GetSubscribedTopics returns the list of currently subscribed topics
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.handlers))
	for topic := range s.handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
