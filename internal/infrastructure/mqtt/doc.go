// Package mqtt provides MQTT broker connectivity for Wearlink Core.
//
// This package wraps paho.mqtt.golang with:
//   - Connection management and automatic reconnection
//   - Subscription tracking and restoration after reconnect
//   - Last Will and Testament for offline detection
//   - Topic builders for the wearlink/... namespace
//
// The broker is how companion services observe the daemon: retained
// per-device connection status, battery readings, a periodic health
// heartbeat, and a forget command topic that lets a UI remove a device
// remotely.
//
// MQTT is optional; when disabled in config the rest of the daemon runs
// without it.
package mqtt
