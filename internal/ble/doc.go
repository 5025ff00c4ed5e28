// Package ble defines the transport abstraction between the connection
// lifecycle core and the Bluetooth radio.
//
// The Central interface covers the five things the lifecycle core needs
// from a radio: retrieve a peripheral handle for a persisted device,
// connect, disconnect, observe link-state transitions, and observe adapter
// power-state transitions. Everything else (GATT, wire protocols, payload
// decoding) lives outside this repository.
//
// The Linux implementation talks to BlueZ over the system D-Bus using
// godbus. Tests use hand-written fakes instead.
package ble
