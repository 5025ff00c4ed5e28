package ble

import "errors"

// Sentinel errors for transport operations.
//
// Connect failures fall into two classes: fatal errors mean the radio cannot
// service any connection until its power state changes (the supervisor goes
// terminal and waits for the reconciler), retryable errors mean this attempt
// failed but another may succeed (the supervisor backs off and retries).
var (
	// ErrNotPowered indicates the adapter radio is not in an operable
	// power state. Fatal: retrying without a power transition is futile.
	ErrNotPowered = errors.New("ble: adapter not powered")

	// ErrUnauthorized indicates the process lacks permission to use the
	// adapter. Fatal.
	ErrUnauthorized = errors.New("ble: adapter access unauthorized")

	// ErrUnsupported indicates no usable adapter exists on this host.
	// Fatal.
	ErrUnsupported = errors.New("ble: bluetooth unsupported")

	// ErrDeviceNotFound indicates the transport could not resolve a
	// peripheral handle for a persisted device.
	ErrDeviceNotFound = errors.New("ble: device not found")

	// ErrConnectFailed indicates a retryable transport-level connect
	// failure.
	ErrConnectFailed = errors.New("ble: connect failed")

	// ErrClosed indicates the central has been closed.
	ErrClosed = errors.New("ble: central closed")
)

// IsFatal reports whether a connect error is terminal for the current power
// state. Fatal errors suppress supervisor self-retry; recovery comes only
// from a power-state transition observed by the reconciler.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotPowered) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrClosed)
}
