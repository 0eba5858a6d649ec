package nats

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"mqtt-dispatcher/internal/broker"
)

// SubscriptionManagerImpl implements SubscriptionManager for NATS
type SubscriptionManagerImpl struct {
	client *Client
	conn   ConnectionManager
	subs   map[string]*nats.Subscription
	mu     sync.RWMutex
}

// NewSubscriptionManager creates a new NATS subscription manager
func NewSubscriptionManager(client *Client, conn ConnectionManager) *SubscriptionManagerImpl {
	return &SubscriptionManagerImpl{
		client: client,
		conn:   conn,
		subs:   make(map[string]*nats.Subscription),
	}
}

// Subscribe subscribes handler to an MQTT-style topic filter
func (s *SubscriptionManagerImpl) Subscribe(topic string, handler broker.MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if !s.conn.IsConnected() {
		return broker.ErrNotConnected
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject := ToNATSSubject(topic)
	sub, err := s.conn.GetConnection().Subscribe(subject, func(msg *nats.Msg) {
		s.handleMessage(msg, handler)
	})
	if err != nil {
		s.client.logger.Error("failed to subscribe to topic",
			"topic", topic,
			"error", err)
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	s.subs[topic] = sub
	s.client.logger.Debug("subscribed to topic",
		"topic", topic,
		"subject", subject)

	return nil
}

// Unsubscribe drops the subscription for topic, if any
func (s *SubscriptionManagerImpl) Unsubscribe(topic string) error {
	s.mu.Lock()
	sub, ok := s.subs[topic]
	delete(s.subs, topic)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, err)
	}
	s.client.logger.Debug("unsubscribed from topic", "topic", topic)
	return nil
}

// UnsubscribeAll unsubscribes from all topics
func (s *SubscriptionManagerImpl) UnsubscribeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for topic, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.client.logger.Error("failed to unsubscribe from topic",
				"topic", topic,
				"error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.client.logger.Debug("unsubscribed from topic", "topic", topic)
	}

	s.subs = make(map[string]*nats.Subscription)
	return firstErr
}

// GetSubscribedTopics returns the list of currently subscribed topics
func (s *SubscriptionManagerImpl) GetSubscribedTopics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// handleMessage maps the subject back to an MQTT topic before handing it on
func (s *SubscriptionManagerImpl) handleMessage(msg *nats.Msg, handler broker.MessageHandler) {
	atomic.AddUint64(&s.client.stats.MessagesReceived, 1)

	topic := ToMQTTTopic(msg.Subject)
	s.client.logger.Debug("received message",
		"topic", topic,
		"subject", msg.Subject,
		"payloadSize", len(msg.Data))

	handler(topic, msg.Data)
}
