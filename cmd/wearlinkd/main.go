// Wearlink Core - household wellness device connectivity daemon
//
// This is the main entry point for Wearlink Core. The daemon pairs,
// persists, and maintains live BLE connections to wellness peripherals
// (watches, scales, thermometers, toothbrushes), re-establishing
// connectivity automatically after disconnects and radio power-cycles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/wearlink/wearlink-core/migrations"

	"github.com/wearlink/wearlink-core/internal/ble"
	"github.com/wearlink/wearlink-core/internal/connection"
	"github.com/wearlink/wearlink-core/internal/device"
	"github.com/wearlink/wearlink-core/internal/infrastructure/config"
	"github.com/wearlink/wearlink-core/internal/infrastructure/database"
	"github.com/wearlink/wearlink-core/internal/infrastructure/influxdb"
	"github.com/wearlink/wearlink-core/internal/infrastructure/logging"
	"github.com/wearlink/wearlink-core/internal/infrastructure/mqtt"
	"github.com/wearlink/wearlink-core/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Wearlink Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	deviceRepo := device.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Open the BLE transport
	central, err := ble.NewBluezCentral(cfg.Bluetooth.Adapter)
	if err != nil {
		return fmt.Errorf("opening bluetooth adapter: %w", err)
	}
	defer func() {
		log.Info("closing bluetooth transport")
		if closeErr := central.Close(); closeErr != nil {
			log.Error("error closing bluetooth transport", "error", closeErr)
		}
	}()
	log.Info("bluetooth adapter opened",
		"adapter", cfg.Bluetooth.Adapter,
		"power", central.PowerState(),
	)

	// Status reporter bridges the connection core to MQTT and InfluxDB.
	// Nil-safe: disabled outputs simply drop their notifications.
	var publisher status.Publisher
	if mqttClient != nil {
		publisher = mqttClient
	}
	var telemetry status.TelemetryWriter
	if influxClient != nil {
		telemetry = influxClient
	}
	reporter := status.NewReporter(publisher, telemetry, log)

	// Start the connection lifecycle core
	manager := connection.NewManager(central, deviceRepo, reporter, connection.Config{
		PairingTimeout: cfg.Bluetooth.PairingTimeout,
		InitialDelay:   cfg.Bluetooth.Reconnect.InitialDelay,
		MaxDelay:       cfg.Bluetooth.Reconnect.MaxDelay,
		QuietPeriod:    cfg.Bluetooth.Reconnect.QuietPeriod,
		Cooldown:       cfg.Bluetooth.Reconnect.Cooldown,
		PowerDebounce:  cfg.Bluetooth.PowerDebounce,
	}, log)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting connection manager: %w", err)
	}
	defer func() {
		log.Info("stopping connection manager")
		manager.Close()
	}()
	log.Info("connection manager started")

	// Advertisement scanning feeds the discovery entries used for pairing
	if err := central.StartDiscovery(ctx); err != nil {
		log.Warn("discovery failed to start (pairing unavailable)", "error", err)
	} else {
		defer func() {
			if stopErr := central.StopDiscovery(context.Background()); stopErr != nil {
				log.Warn("error stopping discovery", "error", stopErr)
			}
		}()
	}

	// Remote forget commands arrive over MQTT
	if mqttClient != nil {
		if err := subscribeForgetCommands(ctx, mqttClient, manager, cfg.MQTT.QoS, log); err != nil {
			return fmt.Errorf("subscribing to forget commands: %w", err)
		}

		healthReporter := status.NewHealthReporter(status.HealthReporterConfig{
			Version:   version,
			Publisher: mqttClient,
			PairedCount: func() int {
				records, listErr := deviceRepo.List(context.Background())
				if listErr != nil {
					return 0
				}
				return len(records)
			},
			RadioState: func() string {
				return central.PowerState().String()
			},
			Logger: log,
		})
		healthReporter.Start(ctx)
		defer healthReporter.Stop()
	}

	// Verify all infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// health reporter, forget subscription (dies with the client),
	// discovery, connection manager, transport, InfluxDB, MQTT, database.

	log.Info("Wearlink Core stopped")
	return nil
}

// subscribeForgetCommands routes wearlink/core/device/+/forget messages
// into the connection manager.
func subscribeForgetCommands(ctx context.Context, client *mqtt.Client, manager *connection.Manager, qos int, log *logging.Logger) error {
	topics := mqtt.Topics{}
	return client.Subscribe(topics.AllDeviceForgets(), byte(qos), func(topic string, _ []byte) error {
		deviceID, ok := deviceIDFromForgetTopic(topic)
		if !ok {
			return fmt.Errorf("malformed forget topic: %s", topic)
		}
		log.Info("forget command received", "device_id", deviceID)
		if err := manager.ForgetDevice(ctx, deviceID); err != nil {
			log.Warn("forget command failed", "device_id", deviceID, "error", err)
			return err
		}
		return nil
	})
}

// deviceIDFromForgetTopic extracts the device id from a forget command
// topic (wearlink/core/device/{id}/forget).
func deviceIDFromForgetTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[4] != "forget" {
		return "", false
	}
	if parts[3] == "" {
		return "", false
	}
	return parts[3], true
}

// getConfigPath returns the configuration file path.
// Uses WEARLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WEARLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
