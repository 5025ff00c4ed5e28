// Package status publishes device and daemon status to MQTT and records
// telemetry in InfluxDB.
//
// Reporter implements the connection core's Observer interface: link
// transitions become retained per-device topics, battery readings become
// retained battery topics plus telemetry points, and pairing/forget events
// are announced and cleaned up. HealthReporter publishes a periodic daemon
// health heartbeat.
//
// Both outputs are optional and best-effort; a broken broker never blocks
// the connection core.
package status
