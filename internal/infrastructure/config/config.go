package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic RF.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Radio     RadioConfig     `yaml:"radio"`
	RF        RFConfig        `yaml:"rf"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains settings for the pairing WebSocket.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RadioConfig describes the connection to the transceiver daemon and the
// channel multiplexer tuning.
type RadioConfig struct {
	// Connection is the daemon URL: "unix:///run/rfd.sock" or "tcp://host:port".
	Connection string `yaml:"connection"`

	// ConnectTimeout and CommandTimeout are in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`
	CommandTimeout int `yaml:"command_timeout"`

	// Backoff bounds for reconnection, in seconds.
	Backoff RadioBackoffConfig `yaml:"backoff"`

	// IdleTime is how long a finished debouncer is kept, in milliseconds.
	IdleTime int `yaml:"idle_time"`

	// EventQueueSize bounds each channel's event queue.
	EventQueueSize int `yaml:"event_queue_size"`

	// Daemon optionally runs the transceiver daemon as a child process.
	Daemon RadioDaemonConfig `yaml:"daemon"`
}

// RadioDaemonConfig describes a locally supervised transceiver daemon.
type RadioDaemonConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`

	// RestartDelay and MaxRestartDelay bound the restart backoff, in seconds.
	RestartDelay    int `yaml:"restart_delay"`
	MaxRestartDelay int `yaml:"max_restart_delay"`

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// RadioBackoffConfig contains reconnection backoff bounds in seconds.
type RadioBackoffConfig struct {
	Initial int `yaml:"initial"`
	Max     int `yaml:"max"`
}

// RFConfig contains the protocol drivers and the bridge settings.
type RFConfig struct {
	// HealthInterval is how often bridge health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`

	// RecordFrames enables the SQLite frame recorder.
	RecordFrames bool `yaml:"record_frames"`

	Drivers []DriverConfig `yaml:"drivers"`
}

// DriverConfig configures one protocol driver instance.
type DriverConfig struct {
	ID      string `yaml:"id"`
	Signal  string `yaml:"signal"`
	Variant string `yaml:"variant"`

	// DebounceMS is the debounce window. Zero uses the driver default and a
	// negative value disables debouncing.
	DebounceMS int `yaml:"debounce_ms"`

	// AddressBits and UnitBits override the variant's field widths.
	AddressBits int `yaml:"address_bits,omitempty"`
	UnitBits    int `yaml:"unit_bits,omitempty"`
}

// Debounce returns the debounce window as a Duration.
func (d DriverConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMS) * time.Millisecond
}

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GRAYLOGIC_RF_"

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_RF_SECTION_KEY
// For example: GRAYLOGIC_RF_DATABASE_PATH, GRAYLOGIC_RF_RADIO_CONNECTION
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-rf.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-rf",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8091,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Radio: RadioConfig{
			Connection:     "unix:///run/rfd.sock",
			ConnectTimeout: 10,
			CommandTimeout: 5,
			Backoff: RadioBackoffConfig{
				Initial: 2,
				Max:     60,
			},
			IdleTime:       10000,
			EventQueueSize: 256,
			Daemon: RadioDaemonConfig{
				RestartDelay:    5,
				MaxRestartDelay: 300,
			},
		},
		RF: RFConfig{
			HealthInterval: 30,
			RecordFrames:   true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_RF_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv(EnvPrefix + "DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv(EnvPrefix + "MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv(EnvPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv(EnvPrefix + "API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv(EnvPrefix + "API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv(EnvPrefix + "INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Radio
	if v := os.Getenv(EnvPrefix + "RADIO_CONNECTION"); v != "" {
		cfg.Radio.Connection = v
	}

	// Logging
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Radio.Connection == "" {
		errs = append(errs, "radio.connection is required")
	}
	if c.Radio.Backoff.Initial < 0 || c.Radio.Backoff.Max < c.Radio.Backoff.Initial {
		errs = append(errs, "radio.backoff.max must be at least radio.backoff.initial")
	}
	if c.Radio.Daemon.Enabled && c.Radio.Daemon.Binary == "" {
		errs = append(errs, "radio.daemon.binary is required when the daemon is enabled")
	}

	errs = append(errs, c.validateDrivers()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// knownVariants mirrors the frame layouts the driver package registers.
var knownVariants = map[string]bool{
	"cotech":        true,
	"cotech_remote": true,
}

func (c *Config) validateDrivers() []string {
	var errs []string
	seen := make(map[string]bool, len(c.RF.Drivers))

	for i, d := range c.RF.Drivers {
		prefix := fmt.Sprintf("rf.drivers[%d]", i)
		if d.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, d.ID))
		} else if strings.ContainsAny(d.ID, ":/+#") {
			// Driver ids prefix device keys and MQTT topic segments.
			errs = append(errs, fmt.Sprintf("%s.id %q must not contain ':', '/', '+' or '#'", prefix, d.ID))
		}
		seen[d.ID] = true

		if d.Signal == "" {
			errs = append(errs, prefix+".signal is required")
		}
		if !knownVariants[d.Variant] {
			errs = append(errs, fmt.Sprintf("%s.variant %q is not supported", prefix, d.Variant))
		}
		if d.AddressBits < 0 || d.UnitBits < 0 {
			errs = append(errs, prefix+" field widths must not be negative")
		}
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetHealthInterval returns the bridge health interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.RF.HealthInterval) * time.Second
}

// GetIdleTime returns the debouncer idle time as a Duration.
func (c *Config) GetIdleTime() time.Duration {
	return time.Duration(c.Radio.IdleTime) * time.Millisecond
}
