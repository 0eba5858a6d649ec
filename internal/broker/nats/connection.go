package nats

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/metrics"
)

const defaultConnectTimeout = 5 * time.Second

// ConnectionManagerImpl implements ConnectionManager for NATS
type ConnectionManagerImpl struct {
	client    *Client
	conn      *nats.Conn
	connected atomic.Bool
}

// NewConnectionManager creates a new NATS connection manager
func NewConnectionManager(client *Client) *ConnectionManagerImpl {
	return &ConnectionManagerImpl{
		client: client,
	}
}

// Connect establishes connection to the NATS server
func (cm *ConnectionManagerImpl) Connect(ctx context.Context) error {
	cfg := cm.client.config
	if len(cfg.URLs) == 0 {
		return fmt.Errorf("%w: no NATS server URLs provided", broker.ErrConnection)
	}

	timeout := defaultConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.Timeout(timeout),
		nats.ReconnectWait(time.Second * 2),
		nats.MaxReconnects(-1), // Unlimited reconnects
		nats.DisconnectErrHandler(cm.handleDisconnect),
		nats.ReconnectHandler(cm.handleReconnect),
		nats.ClosedHandler(cm.handleClosed),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	if cfg.TLS.Enable {
		opts = append(opts, nats.ClientCert(cfg.TLS.CertFile, cfg.TLS.KeyFile))
		if cfg.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(cfg.TLS.CAFile))
		}
	}

	cm.client.logger.Info("connecting to NATS server", "urls", cfg.URLs)

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to NATS server: %v", broker.ErrConnection, err)
	}
	cm.conn = conn
	cm.connected.Store(true)

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
	})

	cm.client.logger.Info("connected to NATS server", "url", conn.ConnectedUrl())

	return nil
}

// Disconnect cleanly disconnects from the NATS server
func (cm *ConnectionManagerImpl) Disconnect() {
	if cm.conn == nil {
		return
	}
	cm.client.logger.Info("disconnecting from NATS server")
	if err := cm.conn.Drain(); err != nil {
		cm.conn.Close()
	}
	cm.connected.Store(false)
}

// IsConnected returns the current connection status
func (cm *ConnectionManagerImpl) IsConnected() bool {
	return cm.conn != nil && cm.conn.IsConnected() && cm.connected.Load()
}

// GetConnection returns the NATS connection
func (cm *ConnectionManagerImpl) GetConnection() *nats.Conn {
	return cm.conn
}

// NATS connection event handlers

func (cm *ConnectionManagerImpl) handleDisconnect(conn *nats.Conn, err error) {
	cm.client.logger.Error("disconnected from NATS server", "error", err)
	cm.connected.Store(false)

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}

// handleReconnect records the reconnect; nats.go replays subscriptions itself
func (cm *ConnectionManagerImpl) handleReconnect(conn *nats.Conn) {
	cm.client.logger.Info("reconnected to NATS server",
		"url", conn.ConnectedUrl(),
		"topics", cm.client.sub.GetSubscribedTopics())
	cm.connected.Store(true)

	cm.client.mu.Lock()
	cm.client.stats.LastReconnect = time.Now()
	cm.client.mu.Unlock()

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(true)
		m.IncReconnects()
	})
}

func (cm *ConnectionManagerImpl) handleClosed(conn *nats.Conn) {
	cm.client.logger.Warn("NATS connection closed")
	cm.connected.Store(false)

	cm.client.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetConnectionStatus(false)
	})
}
