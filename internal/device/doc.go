// Package device defines the persisted model for paired peripherals and
// its SQLite-backed repository.
//
// A Record is created when a pairing handshake completes, mutated on every
// state and battery event while the device is supervised, and deleted when
// the device is forgotten. The connection lifecycle core mutates records
// only through the Repository interface; it does not own storage.
//
// List ordering is by pairing time, which is the order the power-state
// reconciler restores connections in after a radio power-cycle.
package device
