package connection

import "github.com/wearlink/wearlink-core/internal/device"

// Observer receives lifecycle notifications from the connection core.
//
// Implementations publish status (MQTT) and telemetry (InfluxDB); the core
// calls these from supervisor goroutines and the manager, so they must be
// safe for concurrent use and must not block for long.
type Observer interface {
	// ConnectionChanged fires when a device's link comes up or goes down.
	ConnectionChanged(deviceID string, kind device.Kind, connected bool)

	// BatteryChanged fires when a device reports a battery reading.
	BatteryChanged(deviceID string, kind device.Kind, percent int)

	// ConnectAttemptFailed fires on a retryable connect failure, with the
	// consecutive attempt count.
	ConnectAttemptFailed(deviceID string, kind device.Kind, attempt uint)

	// SupervisorTerminal fires when a supervisor reaches a terminal
	// state: "not_locatable" or a fatal transport condition.
	SupervisorTerminal(deviceID string, kind device.Kind, reason string)

	// DevicePaired fires after a pairing handshake completes and the
	// record is persisted.
	DevicePaired(rec device.Record)

	// DeviceForgotten fires after a device's record is removed.
	DeviceForgotten(deviceID string)
}

// NoopObserver implements Observer with no-ops. Embed it to implement only
// the notifications of interest.
type NoopObserver struct{}

func (NoopObserver) ConnectionChanged(string, device.Kind, bool)      {}
func (NoopObserver) BatteryChanged(string, device.Kind, int)          {}
func (NoopObserver) ConnectAttemptFailed(string, device.Kind, uint)   {}
func (NoopObserver) SupervisorTerminal(string, device.Kind, string)   {}
func (NoopObserver) DevicePaired(device.Record)                       {}
func (NoopObserver) DeviceForgotten(string)                           {}
