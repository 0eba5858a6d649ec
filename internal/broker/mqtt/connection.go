package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/metrics"
)

// ConnectionManagerImpl handles MQTT connection lifecycle
type ConnectionManagerImpl struct {
	client    *Client
	mqtt      mqtt.Client
	connected atomic.Bool
}

// NewConnectionManager creates a new MQTT connection manager
func NewConnectionManager(client *Client) (*ConnectionManagerImpl, error) {
	cm := &ConnectionManagerImpl{
		client: client,
	}

	cfg := client.config
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeoutDuration()).
		SetMaxReconnectInterval(time.Minute) // Prevent exponential backoff from growing too large

	opts.OnConnect = cm.handleConnect
	opts.OnConnectionLost = cm.handleDisconnect
	opts.OnReconnecting = cm.handleReconnecting

	if cfg.TLS.Enable {
		tlsConfig, err := broker.NewTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	cm.mqtt = mqtt.NewClient(opts)
	return cm, nil
}

// NewConnectionManagerWithClient creates a connection manager with a provided client (for testing)
func NewConnectionManagerWithClient(client *Client, mqttClient mqtt.Client) *ConnectionManagerImpl {
	return &ConnectionManagerImpl{
		client: client,
		mqtt:   mqttClient,
	}
}

// Connect establishes the connection, bounded by the configured connect
// timeout and ctx
func (cm *ConnectionManagerImpl) Connect(ctx context.Context) error {
	timeout := cm.client.config.ConnectTimeoutDuration()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	token := cm.mqtt.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timed out connecting to %s after %s", broker.ErrConnection, cm.client.config.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", broker.ErrConnection, cm.client.config.Broker, err)
	}

	// OnConnect is not invoked for injected clients
	cm.markConnected()
	return nil
}

// Disconnect cleanly disconnects from the MQTT broker
func (cm *ConnectionManagerImpl) Disconnect() {
	cm.client.logger.Info("disconnecting from mqtt broker")
	cm.mqtt.Disconnect(250)
	cm.connected.Store(false)
	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

// IsConnected returns current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.connected.Load()
}

// GetClient returns the MQTT client instance
func (cm *ConnectionManagerImpl) GetClient() mqtt.Client {
	return cm.mqtt
}

func (cm *ConnectionManagerImpl) markConnected() {
	if cm.connected.Swap(true) {
		return
	}
	cm.client.mu.Lock()
	cm.client.stats.LastReconnect = time.Now()
	cm.client.mu.Unlock()

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
	})
}

// handleConnect processes successful connections and resubscribes to topics
func (cm *ConnectionManagerImpl) handleConnect(client mqtt.Client) {
	cm.client.logger.Info("mqtt client connected", "broker", cm.client.config.Broker)
	cm.markConnected()

	if cm.client.sub == nil {
		return
	}
	if err := cm.client.sub.ResubscribeAll(); err != nil {
		cm.client.logger.Error("failed to resubscribe to topics after reconnect",
			"error", err)
		return
	}
	if topics := cm.client.sub.GetSubscribedTopics(); len(topics) > 0 {
		cm.client.logger.Info("resubscribed to topics", "topics", topics)
	}
}

// handleDisconnect processes connection loss
func (cm *ConnectionManagerImpl) handleDisconnect(client mqtt.Client, err error) {
	cm.client.logger.Error("mqtt connection lost", "error", err)
	cm.connected.Store(false)

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

// handleReconnecting processes reconnection attempts
func (cm *ConnectionManagerImpl) handleReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	cm.client.mu.RLock()
	since := time.Since(cm.client.stats.LastReconnect)
	cm.client.mu.RUnlock()

	cm.client.logger.Info("mqtt client reconnecting",
		"broker", cm.client.config.Broker,
		"sinceLastConnect", since)

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.IncReconnects()
	})
}
