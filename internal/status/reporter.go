package status

import (
	"encoding/json"
	"time"

	"github.com/wearlink/wearlink-core/internal/device"
	"github.com/wearlink/wearlink-core/internal/infrastructure/mqtt"
)

// Publisher is the MQTT surface the reporter needs.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// TelemetryWriter is the InfluxDB surface the reporter needs.
// All writes are asynchronous and non-blocking.
type TelemetryWriter interface {
	WriteBatteryLevel(deviceID string, kind string, percent int)
	WriteConnectionEvent(deviceID string, kind string, event string, attempt int)
	WritePairingEvent(deviceID string, kind string, outcome string, duration time.Duration)
}

// Logger is the minimal logging interface used by this package.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// statusQoS is the QoS for all status publications. At-least-once: retained
// topics converge, duplicate events are harmless.
const statusQoS = 1

// Reporter translates connection lifecycle notifications into retained MQTT
// status topics and InfluxDB telemetry points.
//
// It implements connection.Observer. The publisher and telemetry writer are
// both optional; a nil dependency simply disables that output. All methods
// are safe for concurrent use and never block on the broker.
type Reporter struct {
	publisher Publisher
	telemetry TelemetryWriter
	topics    mqtt.Topics
	log       Logger
}

// NewReporter creates a reporter. Either dependency may be nil.
func NewReporter(publisher Publisher, telemetry TelemetryWriter, log Logger) *Reporter {
	if log == nil {
		log = noopLogger{}
	}
	return &Reporter{
		publisher: publisher,
		telemetry: telemetry,
		log:       log,
	}
}

// ConnectionChanged publishes the retained connection topic and records a
// connection event point.
func (r *Reporter) ConnectionChanged(deviceID string, kind device.Kind, connected bool) {
	r.publishRetained(r.topics.DeviceConnection(deviceID), ConnectionMessage{
		DeviceID:  deviceID,
		Kind:      string(kind),
		Connected: connected,
		Timestamp: time.Now().UTC(),
	})

	if r.telemetry != nil {
		event := "disconnected"
		if connected {
			event = "connected"
		}
		r.telemetry.WriteConnectionEvent(deviceID, string(kind), event, 0)
	}
}

// BatteryChanged publishes the retained battery topic and records a battery
// level point.
func (r *Reporter) BatteryChanged(deviceID string, kind device.Kind, percent int) {
	r.publishRetained(r.topics.DeviceBattery(deviceID), BatteryMessage{
		DeviceID:  deviceID,
		Kind:      string(kind),
		Percent:   percent,
		Timestamp: time.Now().UTC(),
	})

	if r.telemetry != nil {
		r.telemetry.WriteBatteryLevel(deviceID, string(kind), percent)
	}
}

// ConnectAttemptFailed records a retry point. Retry chatter stays out of
// MQTT; the retained connection topic already says the device is down.
func (r *Reporter) ConnectAttemptFailed(deviceID string, kind device.Kind, attempt uint) {
	if r.telemetry != nil {
		r.telemetry.WriteConnectionEvent(deviceID, string(kind), "attempt_failed", int(attempt))
	}
}

// SupervisorTerminal publishes a retained down status carrying the terminal
// reason and records the event.
func (r *Reporter) SupervisorTerminal(deviceID string, kind device.Kind, reason string) {
	r.publishRetained(r.topics.DeviceConnection(deviceID), ConnectionMessage{
		DeviceID:  deviceID,
		Kind:      string(kind),
		Connected: false,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})

	if r.telemetry != nil {
		r.telemetry.WriteConnectionEvent(deviceID, string(kind), "terminal_"+reason, 0)
	}
}

// DevicePaired announces the pairing on the device's paired topic and
// records a pairing point.
func (r *Reporter) DevicePaired(rec device.Record) {
	if r.publisher != nil {
		payload, err := json.Marshal(PairedMessage{
			DeviceID:  rec.ID,
			Kind:      string(rec.Kind),
			Name:      rec.Name,
			Model:     rec.Model,
			Timestamp: time.Now().UTC(),
		})
		if err == nil {
			if err := r.publisher.Publish(r.topics.DevicePaired(rec.ID), payload, statusQoS, false); err != nil {
				r.log.Warn("failed to publish paired event", "device_id", rec.ID, "error", err)
			}
		}
	}

	if r.telemetry != nil {
		r.telemetry.WritePairingEvent(rec.ID, string(rec.Kind), "paired", time.Since(rec.PairedAt))
	}
}

// DeviceForgotten clears the device's retained status topics so stale state
// does not outlive the pairing.
func (r *Reporter) DeviceForgotten(deviceID string) {
	if r.publisher == nil {
		return
	}
	for _, topic := range []string{
		r.topics.DeviceConnection(deviceID),
		r.topics.DeviceBattery(deviceID),
	} {
		if err := r.publisher.Publish(topic, nil, statusQoS, true); err != nil {
			r.log.Warn("failed to clear retained topic", "topic", topic, "error", err)
		}
	}
}

// publishRetained marshals and publishes a retained status payload.
// Best-effort: failures are logged, never propagated to the core.
func (r *Reporter) publishRetained(topic string, msg any) {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("failed to marshal status payload", "topic", topic, "error", err)
		return
	}
	if err := r.publisher.Publish(topic, payload, statusQoS, true); err != nil {
		r.log.Warn("failed to publish status", "topic", topic, "error", err)
	}
}
