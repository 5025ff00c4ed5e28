package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-home"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
bluetooth:
  adapter: "hci1"
  pairing_timeout: 10s
  reconnect:
    initial_delay: 500ms
    max_delay: 30s
    quiet_period: 2m
    cooldown: 2s
  power_debounce: 1s
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-home" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-home")
	}
	if cfg.Bluetooth.Adapter != "hci1" {
		t.Errorf("Bluetooth.Adapter = %q, want %q", cfg.Bluetooth.Adapter, "hci1")
	}
	if cfg.Bluetooth.PairingTimeout != 10*time.Second {
		t.Errorf("PairingTimeout = %v, want 10s", cfg.Bluetooth.PairingTimeout)
	}
	if cfg.Bluetooth.Reconnect.InitialDelay != 500*time.Millisecond {
		t.Errorf("Reconnect.InitialDelay = %v, want 500ms", cfg.Bluetooth.Reconnect.InitialDelay)
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "site: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `site: {id: "d"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bluetooth.Adapter != "hci0" {
		t.Errorf("default Adapter = %q, want hci0", cfg.Bluetooth.Adapter)
	}
	if cfg.Bluetooth.Reconnect.MaxDelay != 2*time.Minute {
		t.Errorf("default MaxDelay = %v, want 2m", cfg.Bluetooth.Reconnect.MaxDelay)
	}
	if cfg.Bluetooth.Reconnect.Cooldown != 3*time.Second {
		t.Errorf("default Cooldown = %v, want 3s", cfg.Bluetooth.Reconnect.Cooldown)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("default QoS = %d, want 1", cfg.MQTT.QoS)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WEARLINK_DATABASE_PATH", "/override/db.sqlite")
	t.Setenv("WEARLINK_BLUETOOTH_ADAPTER", "hci2")
	t.Setenv("WEARLINK_MQTT_PORT", "8883")

	cfg, err := Load(writeConfig(t, `site: {id: "d"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/override/db.sqlite" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Bluetooth.Adapter != "hci2" {
		t.Errorf("Bluetooth.Adapter = %q, want env override", cfg.Bluetooth.Adapter)
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(_ *Config) {}, false},
		{"missing site id", func(c *Config) { c.Site.ID = "" }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"missing adapter", func(c *Config) { c.Bluetooth.Adapter = "" }, true},
		{"zero pairing timeout", func(c *Config) { c.Bluetooth.PairingTimeout = 0 }, true},
		{"max delay below initial", func(c *Config) {
			c.Bluetooth.Reconnect.InitialDelay = time.Minute
			c.Bluetooth.Reconnect.MaxDelay = time.Second
		}, true},
		{"negative debounce", func(c *Config) { c.Bluetooth.PowerDebounce = -time.Second }, true},
		{"invalid qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt enabled without host", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Host = ""
		}, true},
		{"influx enabled without token", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.URL = "http://localhost:8086"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
