package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrRecordNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRecordNotFound is returned when a device ID does not exist.
	ErrRecordNotFound = errors.New("device: record not found")

	// ErrRecordExists is returned when creating a record with an ID that already exists.
	ErrRecordExists = errors.New("device: record already exists")

	// ErrInvalidRecord is returned when record validation fails.
	ErrInvalidRecord = errors.New("device: invalid record")

	// ErrInvalidKind is returned when a device kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")
)
