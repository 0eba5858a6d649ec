package mqtt

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-dispatcher/internal/broker"
)

// ConnectionManager handles MQTT connection lifecycle
type ConnectionManager interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	GetClient() mqtt.Client
}

// SubscriptionManager handles topic subscriptions and message reception
type SubscriptionManager interface {
	Subscribe(topic string, handler broker.MessageHandler) error
	Unsubscribe(topic string) error
	ResubscribeAll() error
	GetSubscribedTopics() []string
}

// Publisher handles message publishing
type Publisher interface {
	Publish(topic string, payload []byte) error
}
