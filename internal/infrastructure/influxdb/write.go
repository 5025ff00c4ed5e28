package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBatteryLevel records a battery reading for a device.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "watch-a1b2")
//   - kind: Device kind for grouping (e.g., "watch", "scale")
//   - percent: Battery level 0-100
//
// Example:
//
//	client.WriteBatteryLevel("watch-a1b2", "watch", 87)
func (c *Client) WriteBatteryLevel(deviceID string, kind string, percent int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"battery",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		map[string]interface{}{
			"percent": percent,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a connection lifecycle transition for a device.
//
// Used to track reconnect churn over time: how often devices drop, how many
// attempts a reconnect takes, and how long devices stay connected.
//
// Parameters:
//   - deviceID: Device identifier
//   - kind: Device kind
//   - event: Transition name (e.g., "connected", "disconnected", "connect_failed", "terminal")
//   - attempt: Reconnect attempt number (0 for first connection)
func (c *Client) WriteConnectionEvent(deviceID string, kind string, event string, attempt int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_events",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
			"event":     event,
		},
		map[string]interface{}{
			"attempt": attempt,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePairingEvent records the outcome of a pairing session.
//
// Parameters:
//   - deviceID: Device identifier (empty if pairing never resolved a device)
//   - kind: Device kind
//   - outcome: Session result (e.g., "paired", "timeout", "cancelled", "disconnected")
//   - duration: How long the session ran before resolving
func (c *Client) WritePairingEvent(deviceID string, kind string, outcome string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pairing_events",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
			"outcome":   outcome,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., readings buffered on the
// peripheral while disconnected).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
