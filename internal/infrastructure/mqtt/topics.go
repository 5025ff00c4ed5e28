package mqtt

import "fmt"

// Topic prefixes for the Wearlink MQTT namespace.
//
// All topics use the scheme: wearlink/{category}/...
const (
	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "wearlink/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "wearlink/system"
)

// Topics provides builders for Wearlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceConnection("watch-a1b2")
//	// Returns: "wearlink/core/device/watch-a1b2/connection"
type Topics struct{}

// DeviceConnection returns the retained connection-status topic for a device.
//
// Example: wearlink/core/device/watch-a1b2/connection
func (Topics) DeviceConnection(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/connection", TopicPrefixCore, deviceID)
}

// DeviceBattery returns the retained battery topic for a device.
//
// Example: wearlink/core/device/watch-a1b2/battery
func (Topics) DeviceBattery(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/battery", TopicPrefixCore, deviceID)
}

// DeviceForget returns the command topic that requests a device be forgotten.
//
// Example: wearlink/core/device/watch-a1b2/forget
func (Topics) DeviceForget(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/forget", TopicPrefixCore, deviceID)
}

// DevicePaired returns the event topic published when a device completes pairing.
//
// Example: wearlink/core/device/watch-a1b2/paired
func (Topics) DevicePaired(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/paired", TopicPrefixCore, deviceID)
}

// SystemStatus returns the daemon status topic (online/offline, LWT).
//
// Example: wearlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemHealth returns the periodic daemon health topic.
//
// Example: wearlink/system/health
func (Topics) SystemHealth() string {
	return fmt.Sprintf("%s/health", TopicPrefixSystem)
}

// AllDeviceForgets returns a pattern matching forget commands for any device.
//
// Pattern: wearlink/core/device/+/forget
func (Topics) AllDeviceForgets() string {
	return fmt.Sprintf("%s/device/+/forget", TopicPrefixCore)
}

// AllDeviceConnections returns a pattern matching all connection-status topics.
//
// Pattern: wearlink/core/device/+/connection
func (Topics) AllDeviceConnections() string {
	return fmt.Sprintf("%s/device/+/connection", TopicPrefixCore)
}
