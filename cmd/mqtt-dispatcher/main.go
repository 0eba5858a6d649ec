package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mqtt-dispatcher/config"
	"mqtt-dispatcher/internal/broker"
	"mqtt-dispatcher/internal/broker/memory"
	mqttbroker "mqtt-dispatcher/internal/broker/mqtt"
	natsbroker "mqtt-dispatcher/internal/broker/nats"
	"mqtt-dispatcher/internal/command"
	"mqtt-dispatcher/internal/logger"
	"mqtt-dispatcher/internal/metrics"
	"mqtt-dispatcher/internal/server"
	"mqtt-dispatcher/internal/session"
	"mqtt-dispatcher/internal/stats"
	"mqtt-dispatcher/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")

	// Optional override flags
	transportOverride := flag.String("transport", "", "override transport: mqtt, nats or memory (empty = use config)")
	brokerOverride := flag.String("broker", "", "override broker address (empty = use config)")
	topicsOverride := flag.String("topics", "", "override comma separated subscription topics (empty = use config)")
	drainModeOverride := flag.String("drain-mode", "", "override interrupt drain mode: worker or inline (empty = use config)")
	serverAddrOverride := flag.String("server-addr", "", "enable the ops server on this address (empty = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*transportOverride,
		*brokerOverride,
		*topicsOverride,
		*drainModeOverride,
		*serverAddrOverride,
	)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration after overrides: %v", err)
	}

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Metrics are served by the ops server
	var metricsService *metrics.Metrics
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}
		cfg.Server.Enabled = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	history, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		logger.Fatal("failed to open history store", "error", err)
	}
	defer history.Close()

	transport, err := newTransport(cfg, logger, metricsService)
	if err != nil {
		logger.Fatal("failed to create transport", "error", err)
	}

	executor, err := newExecutor(cfg, transport, logger)
	if err != nil {
		logger.Fatal("failed to create command executor", "error", err)
	}

	sess := session.New(transport, executor, history, session.Config{
		DrainMode:    cfg.Session.DrainMode,
		HistoryTable: cfg.Session.HistoryTable,
	}, logger, metricsService, stats.NewStatsCollector())

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = sess.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Fatal("failed to connect to broker", "transport", cfg.Transport, "error", err)
	}

	if err := sess.Listen(ctx, cfg.Session.Topics); err != nil {
		logger.Fatal("failed to start session", "error", err)
	}

	var opsServer *server.Server
	if cfg.Server.Enabled {
		var gatherer prometheus.Gatherer
		if reg != nil {
			gatherer = reg
		}
		opsServer = server.New(server.Config{
			Address:     cfg.Server.Address,
			MetricsPath: cfg.Metrics.Path,
		}, sess, gatherer, logger)

		go func() {
			if err := opsServer.Start(); err != nil {
				logger.Error("ops server error", "error", err)
			}
		}()
	}

	logger.Info("mqtt-dispatcher started",
		"transport", cfg.Transport,
		"topics", cfg.Session.Topics,
		"drainMode", cfg.Session.DrainMode,
		"store", cfg.Store.Driver,
		"relayTopic", cfg.Command.RelayTopic,
		"metricsEnabled", cfg.Metrics.Enabled,
		"serverEnabled", cfg.Server.Enabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, syncing logs")
			logger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if opsServer != nil {
				if err := opsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown ops server", "error", err)
				}
			}

			cancel()
			sess.Close()
			return
		}
	}
}

func newTransport(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (broker.Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		return natsbroker.NewClient(&cfg.NATS, log, m), nil
	case config.TransportMemory:
		return memory.NewClient(memory.NewBus(), log), nil
	default:
		return mqttbroker.NewClient(&cfg.MQTT, log, m)
	}
}

// newExecutor relays commands to the configured topic, or only logs them
func newExecutor(cfg *config.Config, transport broker.Transport, log *logger.Logger) (command.Executor, error) {
	if cfg.Command.RelayTopic == "" {
		return command.NewLogExecutor(log), nil
	}
	return command.NewRelay(transport, cfg.Command.RelayTopic, cfg.Command.Encoding, log)
}
