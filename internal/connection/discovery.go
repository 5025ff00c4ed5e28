package connection

import (
	"sync"

	"github.com/wearlink/wearlink-core/internal/ble"
)

// DiscoveryEntry is a transient wrapper around a nearby, not-yet-paired
// device. It exists only while the device is advertised and unpaired, holds
// at most one PairingSession, and bridges device state notifications into
// that session.
type DiscoveryEntry struct {
	mu      sync.Mutex
	adv     ble.Advertisement
	session *PairingSession
}

// NewDiscoveryEntry wraps one advertisement.
func NewDiscoveryEntry(adv ble.Advertisement) *DiscoveryEntry {
	return &DiscoveryEntry{
		adv:     adv,
		session: NewPairingSession(),
	}
}

// ID returns the advertised device's identifier.
func (e *DiscoveryEntry) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adv.Peripheral.ID()
}

// Advertisement returns the latest advertisement for this device.
func (e *DiscoveryEntry) Advertisement() ble.Advertisement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adv
}

// UpdateAdvertisement refreshes the stored advertisement when the device is
// seen again.
func (e *DiscoveryEntry) UpdateAdvertisement(adv ble.Advertisement) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adv = adv
}

// StartSession begins a pairing handshake for this device.
// Returns ErrSessionActive if one is already in flight.
func (e *DiscoveryEntry) StartSession() (<-chan PairingOutcome, error) {
	return e.session.Start()
}

// SessionActive reports whether a pairing handshake is in flight.
func (e *DiscoveryEntry) SessionActive() bool {
	return e.session.Active()
}

// SignalPaired resolves an active session with success if and only if the
// entry's device identity matches. Returns whether a session was resolved
// (false means no-op: wrong device or nothing in flight).
func (e *DiscoveryEntry) SignalPaired(deviceID string) bool {
	if deviceID != e.ID() {
		return false
	}
	return e.session.Paired()
}

// SignalState bridges a device state transition into the session: a move to
// disconnected while a session is active resolves it as disconnected.
func (e *DiscoveryEntry) SignalState(state ble.ConnectionState) {
	if state == ble.StateDisconnected {
		e.session.Disconnected()
	}
}

// SignalTimeout resolves an active session as timed out.
func (e *DiscoveryEntry) SignalTimeout() {
	e.session.Timeout()
}

// SignalCancelled resolves an active session as cancelled.
func (e *DiscoveryEntry) SignalCancelled() {
	e.session.Cancel()
}
