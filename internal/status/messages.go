package status

import "time"

// ConnectionMessage is the retained per-device connection status payload.
type ConnectionMessage struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Connected bool      `json:"connected"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BatteryMessage is the retained per-device battery payload.
type BatteryMessage struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Percent   int       `json:"percent"`
	Timestamp time.Time `json:"timestamp"`
}

// PairedMessage announces a completed pairing.
type PairedMessage struct {
	DeviceID  string    `json:"device_id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthState is the coarse daemon health classification.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthStopping HealthState = "stopping"
)

// HealthMessage is the periodic daemon health payload.
type HealthMessage struct {
	Status        HealthState `json:"status"`
	Reason        string      `json:"reason,omitempty"`
	Version       string      `json:"version"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	PairedDevices int         `json:"paired_devices"`
	RadioState    string      `json:"radio_state"`
	Timestamp     time.Time   `json:"timestamp"`
}
