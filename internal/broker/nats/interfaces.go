package nats

import (
	"context"

	"github.com/nats-io/nats.go"

	"mqtt-dispatcher/internal/broker"
)

// ConnectionManager handles NATS connection lifecycle
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	GetConnection() *nats.Conn
}

// SubscriptionManager handles topic subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(topic string, handler broker.MessageHandler) error
	Unsubscribe(topic string) error
	UnsubscribeAll() error
	GetSubscribedTopics() []string
}

// Publisher handles message publishing
type Publisher interface {
	Publish(topic string, payload []byte) error
}
