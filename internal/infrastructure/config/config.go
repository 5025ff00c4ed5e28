package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Wearlink Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Bluetooth BluetoothConfig `yaml:"bluetooth"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains installation-specific information.
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

// BluetoothConfig contains radio and connection lifecycle settings.
type BluetoothConfig struct {
	// Adapter is the local adapter identifier (e.g. "hci0").
	Adapter string `yaml:"adapter"`

	// PairingTimeout is the default window for a pairing handshake.
	PairingTimeout time.Duration `yaml:"pairing_timeout"`

	// Reconnect tunes the per-device supervisor retry behaviour.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// PowerDebounce is how long a non-operable radio state must persist
	// before supervised connections are torn down. Radio blips shorter
	// than this window are ignored.
	PowerDebounce time.Duration `yaml:"power_debounce"`
}

// ReconnectConfig contains supervisor retry settings.
type ReconnectConfig struct {
	// InitialDelay is the backoff delay after the first retryable failure.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `yaml:"max_delay"`

	// QuietPeriod is the failure-free interval after which the backoff
	// exponent resets to zero.
	QuietPeriod time.Duration `yaml:"quiet_period"`

	// Cooldown is the fixed pause before reconnecting after a graceful
	// disconnect of a connected device. A clean disconnect is expected
	// to be followed by a quick reconnect, so this stays short.
	Cooldown time.Duration `yaml:"cooldown"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WEARLINK_SECTION_KEY
// For example: WEARLINK_DATABASE_PATH, WEARLINK_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "home-001",
			Name: "Wearlink",
		},
		Database: DatabaseConfig{
			Path:        "./data/wearlink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Bluetooth: BluetoothConfig{
			Adapter:        "hci0",
			PairingTimeout: 15 * time.Second,
			Reconnect: ReconnectConfig{
				InitialDelay: 1 * time.Second,
				MaxDelay:     2 * time.Minute,
				QuietPeriod:  5 * time.Minute,
				Cooldown:     3 * time.Second,
			},
			PowerDebounce: 2 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wearlink-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WEARLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("WEARLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Bluetooth
	if v := os.Getenv("WEARLINK_BLUETOOTH_ADAPTER"); v != "" {
		cfg.Bluetooth.Adapter = v
	}

	// MQTT
	if v := os.Getenv("WEARLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WEARLINK_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("WEARLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WEARLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WEARLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Bluetooth validation
	if c.Bluetooth.Adapter == "" {
		errs = append(errs, "bluetooth.adapter is required")
	}
	if c.Bluetooth.PairingTimeout <= 0 {
		errs = append(errs, "bluetooth.pairing_timeout must be positive")
	}
	if c.Bluetooth.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "bluetooth.reconnect.initial_delay must be positive")
	}
	if c.Bluetooth.Reconnect.MaxDelay < c.Bluetooth.Reconnect.InitialDelay {
		errs = append(errs, "bluetooth.reconnect.max_delay must be >= initial_delay")
	}
	if c.Bluetooth.Reconnect.QuietPeriod <= 0 {
		errs = append(errs, "bluetooth.reconnect.quiet_period must be positive")
	}
	if c.Bluetooth.Reconnect.Cooldown < 0 {
		errs = append(errs, "bluetooth.reconnect.cooldown must not be negative")
	}
	if c.Bluetooth.PowerDebounce < 0 {
		errs = append(errs, "bluetooth.power_debounce must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set WEARLINK_INFLUXDB_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
