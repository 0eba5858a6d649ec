package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mqtt-dispatcher/internal/topic"
)

// Transport names
const (
	TransportMQTT   = "mqtt"
	TransportNATS   = "nats"
	TransportMemory = "memory" // in-process loopback, no broker
)

// Drain modes for interrupt processing
const (
	DrainModeWorker = "worker"
	DrainModeInline = "inline"
)

// Store drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config struct {
	Transport string        `yaml:"transport"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	NATS      NATSConfig    `yaml:"nats"`
	Logging   LogConfig     `yaml:"logging"`
	Metrics   MetricsConfig `yaml:"metrics"`
	Store     StoreConfig   `yaml:"store"`
	Session   SessionConfig `yaml:"session"`
	Command   CommandConfig `yaml:"command"`
	Server    ServerConfig  `yaml:"server"`
}

type TLSConfig struct {
	Enable   bool   `yaml:"enable"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

type MQTTConfig struct {
	Broker         string    `yaml:"broker"`
	ClientID       string    `yaml:"clientId"`
	Username       string    `yaml:"username"`
	Password       string    `yaml:"password"`
	QoS            byte      `yaml:"qos"`
	ConnectTimeout string    `yaml:"connectTimeout"` // Duration string
	TLS            TLSConfig `yaml:"tls"`
}

type NATSConfig struct {
	URLs     []string  `yaml:"urls"`
	ClientID string    `yaml:"clientId"`
	Username string    `yaml:"username"`
	Password string    `yaml:"password"`
	TLS      TLSConfig `yaml:"tls"`
}

type LogConfig struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	OutputPath string `yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `yaml:"encoding"`   // json or console
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3 or postgres
	DSN    string `yaml:"dsn"`
}

type SessionConfig struct {
	Topics       []string `yaml:"topics"`
	DrainMode    string   `yaml:"drainMode"` // worker or inline
	HistoryTable string   `yaml:"historyTable"`
}

type CommandConfig struct {
	RelayTopic string `yaml:"relayTopic"`
	Encoding   string `yaml:"encoding"` // json or msgpack
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportMQTT
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultClientID()
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "5s"
	}
	if c.NATS.ClientID == "" {
		c.NATS.ClientID = defaultClientID()
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.DSN == "" && c.Store.Driver == DriverSQLite {
		c.Store.DSN = "file:history.db?_busy_timeout=5000"
	}

	if c.Session.DrainMode == "" {
		c.Session.DrainMode = DrainModeWorker
	}
	if c.Session.HistoryTable == "" {
		c.Session.HistoryTable = "history"
	}

	if c.Command.Encoding == "" {
		c.Command.Encoding = "json"
	}

	if c.Server.Address == "" {
		c.Server.Address = ":2112"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	switch cfg.Transport {
	case TransportMQTT:
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker address is required")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos: %d", cfg.MQTT.QoS)
		}
		if _, err := time.ParseDuration(cfg.MQTT.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid mqtt connect timeout: %w", err)
		}
		if err := validateTLS("mqtt", cfg.MQTT.TLS); err != nil {
			return err
		}
	case TransportNATS:
		if len(cfg.NATS.URLs) == 0 {
			return fmt.Errorf("at least one nats url is required")
		}
		if err := validateTLS("nats", cfg.NATS.TLS); err != nil {
			return err
		}
	case TransportMemory:
	default:
		return fmt.Errorf("invalid transport: %s", cfg.Transport)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	switch cfg.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid store driver: %s", cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		return fmt.Errorf("store dsn is required")
	}

	if len(cfg.Session.Topics) == 0 {
		return fmt.Errorf("at least one session topic is required")
	}
	for _, t := range cfg.Session.Topics {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("session topics must not be empty")
		}
	}
	switch cfg.Session.DrainMode {
	case DrainModeWorker, DrainModeInline:
	default:
		return fmt.Errorf("invalid drain mode: %s", cfg.Session.DrainMode)
	}

	if cfg.Command.RelayTopic != "" {
		// A relayed command must not be routed again by this process.
		if route := topic.Classify(cfg.Command.RelayTopic); route != topic.RouteUnrecognized {
			return fmt.Errorf("command relay topic %q would be routed as %s", cfg.Command.RelayTopic, route)
		}
	}
	switch cfg.Command.Encoding {
	case "json", "msgpack":
	default:
		return fmt.Errorf("invalid command encoding: %s", cfg.Command.Encoding)
	}

	return nil
}

func validateTLS(name string, tls TLSConfig) error {
	if !tls.Enable {
		return nil
	}
	if tls.CertFile == "" {
		return fmt.Errorf("%s tls cert file is required when tls is enabled", name)
	}
	if tls.KeyFile == "" {
		return fmt.Errorf("%s tls key file is required when tls is enabled", name)
	}
	if tls.CAFile == "" {
		return fmt.Errorf("%s tls ca file is required when tls is enabled", name)
	}
	return nil
}

// ConnectTimeoutDuration returns the parsed MQTT connect timeout
func (m MQTTConfig) ConnectTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(m.ConnectTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(transport, brokerAddr, topics, drainMode, serverAddr string) {
	if transport != "" {
		c.Transport = transport
	}
	if brokerAddr != "" {
		if c.Transport == TransportNATS {
			c.NATS.URLs = []string{brokerAddr}
		} else {
			c.MQTT.Broker = brokerAddr
		}
	}
	if topics != "" {
		var list []string
		for _, t := range strings.Split(topics, ",") {
			if t = strings.TrimSpace(t); t != "" {
				list = append(list, t)
			}
		}
		c.Session.Topics = list
	}
	if drainMode != "" {
		c.Session.DrainMode = drainMode
	}
	if serverAddr != "" {
		c.Server.Enabled = true
		c.Server.Address = serverAddr
	}
}

// Validate re-runs validation, e.g. after overrides were applied
func (c *Config) Validate() error {
	return validateConfig(c)
}

func defaultClientID() string {
	return "mqtt-dispatcher-" + uuid.NewString()[:8]
}
