// Package connection implements the device connection lifecycle core: the
// pairing handshake against nearby devices, persistent supervision of paired
// devices, and reconciliation against adapter power state.
//
// The package is built from five cooperating pieces:
//
//   - PairingSession / DiscoveryEntry: one-shot handshake primitives for
//     nearby, unpaired devices. The first of paired, disconnected, timeout,
//     or cancel resolves a session; later signals are no-ops.
//
//   - Supervisor: one goroutine per paired device, looping through retrieve,
//     connect, wait, and exponential backoff until cancelled, removed, or
//     terminal. It exclusively owns the device's peripheral handle.
//
//   - Dispatcher: serializes connect/cancel/remove requests into a single
//     consumer loop, guaranteeing at most one supervisor task per device id.
//
//   - Reconciler: bulk-restores supervision when the radio powers on and,
//     after a debounce window, bulk tears it down when the radio goes dark.
//
//   - Manager: the exposed surface. It routes transport notifications to the
//     pieces above and implements Pair, ForgetDevice, and the queries.
//
// Status publishing and telemetry are decoupled through the Observer
// interface; the core never touches MQTT or InfluxDB directly.
package connection
