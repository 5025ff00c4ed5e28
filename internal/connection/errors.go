package connection

import "errors"

// Pairing-path errors surfaced synchronously to Pair callers.
//
// Steady-state reconnection errors are never surfaced; they are retried
// internally per the backoff policy and observable only via IsConnected and
// the record's not_locatable/last_seen fields.
var (
	// ErrInvalidState is returned when the device is not nearby or not
	// disconnected when pairing was requested.
	ErrInvalidState = errors.New("connection: device not in a pairable state")

	// ErrSessionActive is returned when a pairing session is already
	// active for this device.
	ErrSessionActive = errors.New("connection: pairing session already active")

	// ErrNotInPairingMode is returned when the device's advertised
	// pairing-mode flag is false.
	ErrNotInPairingMode = errors.New("connection: device not in pairing mode")

	// ErrDeviceDisconnected is returned when the device disconnected
	// before confirming pairing.
	ErrDeviceDisconnected = errors.New("connection: device disconnected during pairing")

	// ErrPairingTimeout is returned when no pairing confirmation arrived
	// within the configured window.
	ErrPairingTimeout = errors.New("connection: pairing timed out")

	// ErrPairingCancelled is returned when the caller cancelled the
	// pairing operation.
	ErrPairingCancelled = errors.New("connection: pairing cancelled")

	// ErrClosed is returned when an operation is attempted after the
	// manager has shut down.
	ErrClosed = errors.New("connection: closed")
)
