package ble

import "context"

// PowerState represents the adapter radio power state.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerOn
	PowerOff
	PowerUnauthorized
	PowerUnsupported
)

// String returns the lowercase name of the power state.
func (s PowerState) String() string {
	switch s {
	case PowerOn:
		return "powered_on"
	case PowerOff:
		return "powered_off"
	case PowerUnauthorized:
		return "unauthorized"
	case PowerUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Operable reports whether the radio can service connections in this state.
func (s PowerState) Operable() bool {
	return s == PowerOn
}

// ConnectionState represents a peripheral's link state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the lowercase name of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// Peripheral is a live handle to a physical accessory.
//
// A handle is exclusively owned by at most one supervisor at a time; the
// connection layer enforces this by id-keyed exclusivity, never by locking
// the handle itself.
type Peripheral interface {
	// ID returns the stable device identifier (derived from the address).
	ID() string

	// Name returns the advertised or cached device name (may be empty).
	Name() string
}

// Advertisement describes a nearby device observed by the transport.
type Advertisement struct {
	// Peripheral is the transient handle for the advertised device.
	Peripheral Peripheral

	// Kind is the inferred device kind (e.g. "watch", "scale"), empty if
	// the advertisement did not carry enough to classify it.
	Kind string

	// Model is the advertised model string, if present.
	Model string

	// PairingMode reports whether the device advertised itself as ready
	// to pair.
	PairingMode bool

	// RSSI is the received signal strength, 0 if unknown.
	RSSI int16
}

// StateEvent is a peripheral link-state transition notification.
type StateEvent struct {
	DeviceID string
	State    ConnectionState

	// BatteryPercent carries a battery reading delivered alongside the
	// event, -1 when absent.
	BatteryPercent int
}

// StateHandler receives peripheral link-state transitions.
type StateHandler func(StateEvent)

// PowerHandler receives adapter power-state transitions.
type PowerHandler func(PowerState)

// DiscoveryHandler receives advertisements for nearby devices.
type DiscoveryHandler func(Advertisement)

// DiscoveryLostHandler receives the id of a device the transport no longer
// sees advertising.
type DiscoveryLostHandler func(deviceID string)

// Central is the transport abstraction consumed by the connection layer.
//
// Implementations own the radio; the connection layer owns which devices
// should be connected and drives Connect/Disconnect through this interface.
type Central interface {
	// RetrieveDevice resolves a fresh peripheral handle for a persisted
	// device, keyed by kind and id. Returns ErrDeviceNotFound if the
	// transport has no knowledge of the device.
	RetrieveDevice(ctx context.Context, kind string, id string) (Peripheral, error)

	// Connect establishes a link to the peripheral. Blocks until the link
	// is up, the context is cancelled, or the attempt fails.
	Connect(ctx context.Context, p Peripheral) error

	// Disconnect tears down the link to the peripheral.
	Disconnect(ctx context.Context, p Peripheral) error

	// IsConnected reports the current link state of the peripheral as the
	// transport sees it. Unknown devices report false without error.
	IsConnected(ctx context.Context, p Peripheral) (bool, error)

	// PowerState returns the last known adapter power state.
	PowerState() PowerState

	// WatchPower registers a handler for power-state transitions and
	// returns a cancel function that removes it. Only one watch is
	// supported at a time.
	WatchPower(handler PowerHandler) (cancel func(), err error)

	// SetStateHandler registers the handler for peripheral link-state
	// transitions. Pass nil to clear.
	SetStateHandler(handler StateHandler)

	// SetDiscoveryHandler registers the handler for advertisements.
	// Pass nil to clear.
	SetDiscoveryHandler(handler DiscoveryHandler)

	// SetDiscoveryLostHandler registers the handler invoked when a
	// previously advertised device drops out of view. Pass nil to clear.
	SetDiscoveryLostHandler(handler DiscoveryLostHandler)

	// Close releases transport resources. Idempotent.
	Close() error
}
