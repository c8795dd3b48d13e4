package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of everything loaded from config.yaml. Values
// resolve in three layers: built-in defaults, then the file, then
// environment overrides.
type Config struct {
	Rig       RigConfig       `yaml:"rig"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RigConfig holds rig-wide settings and the instruments to seed at
// startup.
type RigConfig struct {
	Name        string             `yaml:"name"`
	TickMs      int                `yaml:"tick_ms"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// TickInterval is the virtual-clock advance period as a Duration.
func (r RigConfig) TickInterval() time.Duration {
	return time.Duration(r.TickMs) * time.Millisecond
}

// InstrumentConfig describes one instrument to register when the rig
// starts. Entries are upserted into the instrument store, so the file
// can be edited and re-applied without wiping runtime state.
type InstrumentConfig struct {
	Name      string            `yaml:"name"`
	Driver    string            `yaml:"driver"`
	Transport TransportConfig   `yaml:"transport"`
	Params    map[string]string `yaml:"params"`
	Enabled   bool              `yaml:"enabled"`
}

// TransportConfig describes how an instrument is physically reached.
// Kind selects the transport: "serial", "socket", or "virtual".
type TransportConfig struct {
	Kind     string `yaml:"kind"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
	Address  string `yaml:"address"`
}

// DatabaseConfig selects the SQLite file and its pragmas.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig covers the broker connection and topic namespace.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig identifies the broker endpoint.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTopicsConfig names the topic namespace.
type MQTTTopicsConfig struct {
	Prefix string `yaml:"prefix"`
}

// MQTTReconnectConfig shapes the reconnect backoff, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig covers the HTTP listener.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig points at the certificate pair.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig holds HTTP server timeouts, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// ReadTimeout is the HTTP read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout is the HTTP write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout is the HTTP keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// CORSConfig is the cross-origin allow list.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig shapes the event stream endpoint. Intervals are in
// seconds.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// PingEvery is the protocol ping period as a Duration.
func (w WebSocketConfig) PingEvery() time.Duration {
	return time.Duration(w.PingInterval) * time.Second
}

// PongWait is how long to wait on a pong as a Duration.
func (w WebSocketConfig) PongWait() time.Duration {
	return time.Duration(w.PongTimeout) * time.Second
}

// LoggingConfig shapes the structured log output. The daemon writes to
// stdout or stderr and leaves rotation to the service manager.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads the YAML file at path on top of the built-in defaults,
// applies environment overrides, and validates the result.
//
// Environment variables follow the pattern BENCHRIG_SECTION_KEY, for
// example BENCHRIG_DATABASE_PATH or BENCHRIG_MQTT_PASSWORD. They exist
// so deployments can keep credentials out of the file.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig is the baseline a missing or sparse file starts from.
func defaultConfig() *Config {
	return &Config{
		Rig: RigConfig{
			Name:   "bench",
			TickMs: 100,
		},
		Database: DatabaseConfig{
			Path:        "./data/benchrig.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "benchrig-core",
			},
			QoS: 1,
			Topics: MQTTTopicsConfig{
				Prefix: "benchrig",
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverrides maps environment variables onto config fields. Only
// settings that plausibly differ between deployments of the same file
// are listed; everything else belongs in the file itself.
var envOverrides = []struct {
	key string
	set func(*Config, string)
}{
	{"BENCHRIG_DATABASE_PATH", func(c *Config, v string) { c.Database.Path = v }},
	{"BENCHRIG_MQTT_HOST", func(c *Config, v string) { c.MQTT.Broker.Host = v }},
	{"BENCHRIG_MQTT_USERNAME", func(c *Config, v string) { c.MQTT.Auth.Username = v }},
	{"BENCHRIG_MQTT_PASSWORD", func(c *Config, v string) { c.MQTT.Auth.Password = v }},
	{"BENCHRIG_API_HOST", func(c *Config, v string) { c.API.Host = v }},
}

func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		if v := os.Getenv(o.key); v != "" {
			o.set(cfg, v)
		}
	}
}

// Validate collects every problem in the configuration rather than
// stopping at the first, so a bad file is fixed in one pass.
func (c *Config) Validate() error {
	var errs []string
	errs = append(errs, c.Rig.problems()...)
	errs = append(errs, c.Database.problems()...)
	errs = append(errs, c.MQTT.problems()...)
	errs = append(errs, c.API.problems()...)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (r RigConfig) problems() []string {
	var errs []string
	if r.TickMs <= 0 {
		errs = append(errs, "rig.tick_ms must be positive")
	}
	for i, inst := range r.Instruments {
		if inst.Name == "" {
			errs = append(errs, fmt.Sprintf("rig.instruments[%d].name is required", i))
		}
		if inst.Driver == "" {
			errs = append(errs, fmt.Sprintf("rig.instruments[%d].driver is required", i))
		}
	}
	return errs
}

func (d DatabaseConfig) problems() []string {
	if d.Path == "" {
		return []string{"database.path is required"}
	}
	return nil
}

func (m MQTTConfig) problems() []string {
	var errs []string
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, "mqtt.qos must be one of 0, 1, 2")
	}
	if m.Enabled && m.Topics.Prefix == "" {
		errs = append(errs, "mqtt.topics.prefix is required when mqtt is enabled")
	}
	return errs
}

func (a APIConfig) problems() []string {
	if a.Port < 1 || a.Port > 65535 {
		return []string{"api.port must be between 1 and 65535"}
	}
	return nil
}
