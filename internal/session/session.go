// Package session owns one broker connection and the goroutines that feed
// inbound messages through the router.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mqtt-dispatcher/config"
	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/command"
	"mqtt-dispatcher/internal/interrupt"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/payload"
	"mqtt-dispatcher/internal/queue"
	"mqtt-dispatcher/internal/router"
	"mqtt-dispatcher/internal/sensor"
	"mqtt-dispatcher/internal/stats"
	"mqtt-dispatcher/internal/store"
)

// ErrAlreadyListening is returned by a second call to Listen
var ErrAlreadyListening = errors.New("session is already listening")

// Config holds session settings
type Config struct {
	DrainMode    string // config.DrainModeWorker or config.DrainModeInline
	HistoryTable string
}

// Session is a broker client that routes everything it receives
type Session struct {
	transport  broker.Transport
	router     *router.Router
	interrupts *interrupt.Processor
	sensors    *sensor.State
	worker     bool

	// inbox is filled by transport callbacks and drained by receiveLoop only
	inbox *queue.Ordered[payload.Message]
	wake  chan struct{}

	logger  *logger.Logger
	metrics *metrics.Metrics
	stats   *stats.StatsCollector

	mu        sync.Mutex
	listening bool
	topics    []string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a session around transport. Commands and interrupt records
// are handed to exec; interrupt records are persisted through w.
func New(transport broker.Transport, exec command.Executor, w store.Writer, cfg Config, log *logger.Logger, m *metrics.Metrics, st *stats.StatsCollector) *Session {
	if st == nil {
		st = stats.NewStatsCollector()
	}
	worker := cfg.DrainMode != config.DrainModeInline

	sensors := sensor.NewState()
	interrupts := interrupt.NewProcessor(interrupt.Config{Table: cfg.HistoryTable}, exec, w,
		log.With("component", "interrupts"), m, st)

	return &Session{
		transport:  transport,
		router:     router.NewRouter(sensors, exec, interrupts, router.Options{InlineDrain: !worker}, log.With("component", "router"), m, st),
		interrupts: interrupts,
		sensors:    sensors,
		worker:     worker,
		inbox:      queue.New[payload.Message](queue.FIFO),
		wake:       make(chan struct{}, 1),
		logger:     log,
		metrics:    m,
		stats:      st,
	}
}

// Connect opens the transport. Failures wrap broker.ErrConnection and are
// not retried.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		if !errors.Is(err, broker.ErrConnection) {
			err = fmt.Errorf("%w: %v", broker.ErrConnection, err)
		}
		return err
	}
	s.logger.Info("session connected")
	return nil
}

// Listen subscribes to topics and starts the receive loop, plus the
// interrupt consumer in worker mode. The subscription set is fixed once
// Listen succeeds.
func (s *Session) Listen(ctx context.Context, topics []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening {
		return ErrAlreadyListening
	}
	if len(topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	for _, t := range topics {
		if err := broker.ValidateFilter(t); err != nil {
			return fmt.Errorf("invalid topic %q: %w", t, err)
		}
	}

	subscribed := make([]string, 0, len(topics))
	for _, t := range topics {
		if err := s.transport.Subscribe(t, s.onMessage); err != nil {
			// no loop drains the inbox yet, so earlier subscriptions are released
			s.unsubscribe(subscribed)
			return fmt.Errorf("failed to subscribe to %s: %w", t, err)
		}
		subscribed = append(subscribed, t)
		s.logger.Info("subscribed to topic", "topic", t)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.topics = append([]string(nil), topics...)
	s.listening = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.receiveLoop(loopCtx)
	}()

	if s.worker {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.interrupts.Run(loopCtx)
		}()
	}

	s.logger.Info("session listening",
		"topics", s.topics,
		"worker", s.worker)

	return nil
}

func (s *Session) unsubscribe(topics []string) {
	for i := len(topics) - 1; i >= 0; i-- {
		if err := s.transport.Unsubscribe(topics[i]); err != nil {
			s.logger.Warn("failed to release subscription",
				"topic", topics[i],
				"error", err)
		}
	}
	for {
		if _, err := s.inbox.Get(); err != nil {
			break
		}
	}
}

// onMessage is the transport callback; it only queues the message
func (s *Session) onMessage(topic string, data []byte) {
	s.inbox.Add(payload.NewMessage(topic, data))
	s.stats.IncReceived()
	s.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetQueueDepth("messages", float64(s.inbox.Len()))
	})

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// receiveLoop is the sole consumer of the inbox and the sole caller of the
// router
func (s *Session) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		for ctx.Err() == nil {
			msg, err := s.inbox.Get()
			if err != nil {
				break
			}
			s.safeMetricsUpdate(func(m *metrics.Metrics) {
				m.SetQueueDepth("messages", float64(s.inbox.Len()))
			})
			// failures are logged and counted by the router
			_, _ = s.router.Dispatch(ctx, msg)
		}
	}
}

// Broadcast publishes payload to every topic. All topics are attempted; the
// first failure is returned.
func (s *Session) Broadcast(topics []string, data string) error {
	var firstErr error
	for _, t := range topics {
		err := broker.ValidateTopicName(t)
		if err == nil {
			err = s.transport.Publish(t, []byte(data))
		}
		if err != nil {
			s.stats.IncErrors()
			s.logger.Error("failed to broadcast",
				"topic", t,
				"error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("broadcast to %s: %w", t, err)
			}
			continue
		}
		s.logger.Debug("broadcast", "topic", t, "payloadSize", len(data))
	}
	return firstErr
}

// Sensors returns the session's sensor state
func (s *Session) Sensors() *sensor.State {
	return s.sensors
}

// PendingInterrupts returns the number of queued interrupt records
func (s *Session) PendingInterrupts() int {
	return s.interrupts.Pending()
}

// PendingMessages returns the number of received messages not yet routed
func (s *Session) PendingMessages() int {
	return s.inbox.Len()
}

// Topics returns the subscription set
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...)
}

// Stats returns the session counters
func (s *Session) Stats() *stats.StatsCollector {
	return s.stats
}

// IsConnected reports the transport connection state
func (s *Session) IsConnected() bool {
	return s.transport.IsConnected()
}

// TransportStats returns the transport counters
func (s *Session) TransportStats() broker.Stats {
	return s.transport.GetStats()
}

// Close stops the loops, persists interrupt records still queued, and
// disconnects
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if n := s.interrupts.Pending(); n > 0 {
		s.logger.Info("draining queued interrupts before shutdown", "pending", n)
		s.interrupts.DrainAll(context.Background())
	}

	s.transport.Disconnect()
	s.logger.Info("session closed")
}

// safeMetricsUpdate safely updates metrics if they are enabled
func (s *Session) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}
