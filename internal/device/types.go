package device

import (
	"fmt"
	"time"
)

// Kind classifies a wellness peripheral.
type Kind string

const (
	KindWatch       Kind = "watch"
	KindScale       Kind = "scale"
	KindThermometer Kind = "thermometer"
	KindToothbrush  Kind = "toothbrush"
)

// Valid reports whether the kind is one of the recognised values.
func (k Kind) Valid() bool {
	switch k {
	case KindWatch, KindScale, KindThermometer, KindToothbrush:
		return true
	default:
		return false
	}
}

// BatteryUnknown marks a record with no battery reading yet.
const BatteryUnknown = -1

// Record is the persisted representation of a paired device.
// This matches the database schema in migrations/20260301_120000_initial_schema.up.sql.
type Record struct {
	// Identity
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	// Metadata
	Model string `json:"model,omitempty"`
	Icon  string `json:"icon,omitempty"`

	// Liveness
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	BatteryPercent int        `json:"battery_percent"`

	// NotLocatable is set when the transport can no longer resolve a
	// handle for this device. Cleared on the next successful retrieval.
	NotLocatable bool `json:"not_locatable"`

	// Timestamps
	PairedAt  time.Time `json:"paired_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the record's fields before persistence.
func (r *Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if r.Name == "" || len(r.Name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, r.Name)
	}
	if r.BatteryPercent != BatteryUnknown && (r.BatteryPercent < 0 || r.BatteryPercent > 100) {
		return fmt.Errorf("%w: battery %d out of range", ErrInvalidRecord, r.BatteryPercent)
	}
	return nil
}

const maxNameLength = 100
