package mqtt

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err      error
	timedOut bool
	done     chan struct{}
}

func NewMockToken() *MockToken {
	done := make(chan struct{})
	close(done)
	return &MockToken{done: done}
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return !t.timedOut }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockMessage implements mqtt.Message for testing
type MockMessage struct {
	topic   string
	payload []byte
}

func (m *MockMessage) Duplicate() bool   { return false }
func (m *MockMessage) Qos() byte         { return 0 }
func (m *MockMessage) Retained() bool    { return false }
func (m *MockMessage) Topic() string     { return m.topic }
func (m *MockMessage) MessageID() uint16 { return 0 }
func (m *MockMessage) Payload() []byte   { return m.payload }
func (m *MockMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// MockClient implements mqtt.Client for testing
type MockClient struct {
	connected    atomic.Bool
	connectToken *MockToken
	publishErr   error
	subscribeErr error

	mu           sync.RWMutex
	callbacks    map[string]mqtt.MessageHandler
	subscribes   []string
	unsubscribes []string
	published    []published
	disconnects  int
}

func NewMockClient() *MockClient {
	return &MockClient{
		connectToken: NewMockToken(),
		callbacks:    make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockClient) Connect() mqtt.Token {
	if m.connectToken.err == nil && !m.connectToken.timedOut {
		m.connected.Store(true)
	}
	return m.connectToken
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.connected.Store(false)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	token := NewMockToken()
	if m.publishErr != nil {
		token.err = m.publishErr
		return token
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return token
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	token := NewMockToken()
	if m.subscribeErr != nil {
		token.err = m.subscribeErr
		return token
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[topic] = callback
	m.subscribes = append(m.subscribes, topic)
	return token
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken()
}
func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range topics {
		delete(m.callbacks, topic)
		m.unsubscribes = append(m.unsubscribes, topic)
	}
	return NewMockToken()
}

func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}
func (m *MockClient) IsConnected() bool                                   { return m.connected.Load() }
func (m *MockClient) IsConnectionOpen() bool                              { return m.connected.Load() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader             { return mqtt.ClientOptionsReader{} }

// deliver invokes the callback registered for an exact topic
func (m *MockClient) deliver(topic string, payload []byte) bool {
	m.mu.RLock()
	cb, ok := m.callbacks[topic]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	cb(m, &MockMessage{topic: topic, payload: payload})
	return true
}
