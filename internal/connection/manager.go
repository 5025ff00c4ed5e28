package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wearlink/wearlink-core/internal/ble"
	"github.com/wearlink/wearlink-core/internal/device"
)

// Manager is the exposed surface of the connection lifecycle core.
//
// It owns the dispatcher and reconciler, routes transport notifications
// (discovery, link state, power) to the right component, and implements the
// pairing handshake, forget, and the paired/connected queries.
type Manager struct {
	central  ble.Central
	repo     device.Repository
	observer Observer
	cfg      Config
	log      Logger

	dispatcher *Dispatcher
	reconciler *Reconciler

	mu         sync.Mutex
	discovered map[string]*DiscoveryEntry
	closed     bool
}

// NewManager wires the connection core around a transport, a repository,
// and an observer for status/telemetry. Observer and log may be nil.
func NewManager(central ble.Central, repo device.Repository, observer Observer, cfg Config, log Logger) *Manager {
	if observer == nil {
		observer = NoopObserver{}
	}
	if log == nil {
		log = noopLogger{}
	}

	m := &Manager{
		central:    central,
		repo:       repo,
		observer:   observer,
		cfg:        cfg.withDefaults(),
		log:        log,
		discovered: make(map[string]*DiscoveryEntry),
	}
	m.dispatcher = NewDispatcher(log)
	m.reconciler = NewReconciler(central, repo, m.dispatcher, m.newSupervisor, m.cfg, log)
	return m
}

// Start launches the dispatcher and reconciler, registers the transport
// handlers, and restores supervision for every already-paired device if the
// radio is operable.
func (m *Manager) Start(ctx context.Context) error {
	m.dispatcher.Start()
	m.reconciler.Start()

	m.central.SetStateHandler(m.handleStateEvent)
	m.central.SetDiscoveryHandler(m.handleAdvertisement)
	m.central.SetDiscoveryLostHandler(m.handleDeviceLost)

	records, err := m.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing paired devices: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	if err := m.reconciler.EnsureSubscribed(); err != nil {
		return fmt.Errorf("subscribing to power state: %w", err)
	}
	if m.central.PowerState().Operable() {
		m.reconciler.HandlePowerState(m.central.PowerState())
	}
	return nil
}

// Close tears the core down in order: stop consuming transport events,
// stop the reconciler, then cancel and await every supervisor.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.central.SetStateHandler(nil)
	m.central.SetDiscoveryHandler(nil)
	m.central.SetDiscoveryLostHandler(nil)
	m.reconciler.Close()
	m.dispatcher.Close()
}

// Pair performs the full pairing handshake against a nearby device.
//
// Preconditions: the device must be advertised (nearby), disconnected, not
// already paired, and in pairing mode. The handshake connects, then awaits
// an external confirmation via SignalDevicePaired, a disconnect, the
// timeout, or caller cancellation; whichever signal arrives first decides
// the outcome. On success the record is persisted and supervision starts.
//
// A timeout of zero uses the configured default.
func (m *Manager) Pair(ctx context.Context, deviceID string, timeout time.Duration) (*device.Record, error) {
	if timeout <= 0 {
		timeout = m.cfg.PairingTimeout
	}
	if m.isClosed() {
		return nil, ErrClosed
	}

	if _, err := m.repo.GetByID(ctx, deviceID); err == nil {
		return nil, fmt.Errorf("%w: already paired", ErrInvalidState)
	} else if !errors.Is(err, device.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking paired state: %w", err)
	}

	entry := m.entry(deviceID)
	if entry == nil {
		return nil, fmt.Errorf("%w: device not nearby", ErrInvalidState)
	}

	adv := entry.Advertisement()
	if !adv.PairingMode {
		return nil, ErrNotInPairingMode
	}
	kind := device.Kind(adv.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unrecognised device kind %q", ErrInvalidState, adv.Kind)
	}

	outcome, err := entry.StartSession()
	if err != nil {
		return nil, err
	}

	// The link-state check sits behind StartSession so that a concurrent
	// Pair, whose own connect has the link up, is reported as a session
	// conflict rather than a stale link.
	if connected, cErr := m.central.IsConnected(ctx, adv.Peripheral); cErr == nil && connected {
		entry.SignalCancelled()
		<-outcome
		return nil, fmt.Errorf("%w: device not disconnected", ErrInvalidState)
	}

	m.log.Info("pairing started", "device_id", deviceID, "kind", kind, "timeout", timeout)

	if err := m.central.Connect(ctx, adv.Peripheral); err != nil {
		entry.SignalCancelled()
		<-outcome
		return nil, fmt.Errorf("connecting for pairing: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result PairingOutcome
	select {
	case result = <-outcome:
	case <-timer.C:
		entry.SignalTimeout()
		// A confirmation may have raced the timer; the session's
		// first-signal-wins rule decides.
		result = <-outcome
	case <-ctx.Done():
		entry.SignalCancelled()
		result = <-outcome
	}

	switch result {
	case OutcomePaired:
		return m.finalizePairing(ctx, entry, kind)
	case OutcomeTimeout:
		m.abortPairing(adv.Peripheral)
		return nil, ErrPairingTimeout
	case OutcomeDisconnected:
		return nil, ErrDeviceDisconnected
	default:
		m.abortPairing(adv.Peripheral)
		return nil, ErrPairingCancelled
	}
}

// finalizePairing persists the record, promotes the discovery entry's
// peripheral handle into a supervisor, and establishes the power watch.
func (m *Manager) finalizePairing(ctx context.Context, entry *DiscoveryEntry, kind device.Kind) (*device.Record, error) {
	adv := entry.Advertisement()
	id := adv.Peripheral.ID()

	name := adv.Peripheral.Name()
	if name == "" {
		name = fmt.Sprintf("%s %s", kind, id)
	}

	rec := &device.Record{
		ID:             id,
		Kind:           kind,
		Name:           name,
		Model:          adv.Model,
		Icon:           string(kind),
		BatteryPercent: device.BatteryUnknown,
		PairedAt:       time.Now().UTC(),
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		m.abortPairing(adv.Peripheral)
		return nil, fmt.Errorf("persisting paired device: %w", err)
	}

	m.dropEntry(id)

	// The device is already connected from the handshake; the supervisor
	// takes ownership of the handle and its connect is a no-op on an
	// established link.
	m.dispatcher.Connect(m.newSupervisor(id, kind, adv.Peripheral))

	if err := m.reconciler.EnsureSubscribed(); err != nil {
		m.log.Error("failed to establish power subscription", "error", err)
	}

	m.log.Info("device paired", "device_id", id, "kind", kind, "name", name)
	m.observer.DevicePaired(*rec)
	return rec, nil
}

// abortPairing disconnects a device left connected by a failed handshake.
// Best-effort: the device may already be gone.
func (m *Manager) abortPairing(p ble.Peripheral) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	if err := m.central.Disconnect(ctx, p); err != nil {
		m.log.Debug("pairing abort disconnect failed", "device_id", p.ID(), "error", err)
	}
}

// SignalDevicePaired resolves an outstanding pairing session for the
// device, if any. Invoked by device-specific logic when it detects pairing
// success. Returns whether a session was resolved.
func (m *Manager) SignalDevicePaired(deviceID string) bool {
	entry := m.entry(deviceID)
	if entry == nil {
		return false
	}
	return entry.SignalPaired(deviceID)
}

// ForgetDevice cancels any in-flight supervision for the device, issues a
// transport disconnect, and removes the persisted record. The supervisor
// task has fully exited, its handle released, before this returns.
func (m *Manager) ForgetDevice(ctx context.Context, deviceID string) error {
	if m.isClosed() {
		return ErrClosed
	}
	if _, err := m.repo.GetByID(ctx, deviceID); err != nil {
		return err
	}

	<-m.dispatcher.Remove(deviceID, true)

	if err := m.repo.Delete(ctx, deviceID); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}

	records, err := m.repo.List(ctx)
	if err != nil {
		m.log.Error("failed to list records after forget", "error", err)
	} else if len(records) == 0 {
		m.reconciler.ReleaseSubscription()
	}

	m.log.Info("device forgotten", "device_id", deviceID)
	m.observer.DeviceForgotten(deviceID)
	return nil
}

// IsConnected reports whether the device's supervised link is currently up.
func (m *Manager) IsConnected(deviceID string) bool {
	return m.dispatcher.IsConnected(deviceID)
}

// IsPaired reports whether a persisted record exists for the device.
func (m *Manager) IsPaired(ctx context.Context, deviceID string) bool {
	_, err := m.repo.GetByID(ctx, deviceID)
	return err == nil
}

// newSupervisor is the factory shared with the reconciler.
func (m *Manager) newSupervisor(deviceID string, kind device.Kind, p ble.Peripheral) *Supervisor {
	return NewSupervisor(deviceID, kind, p, m.central, m.repo, m.observer, m.cfg, m.log)
}

// handleAdvertisement tracks nearby, unpaired devices as discovery entries.
func (m *Manager) handleAdvertisement(adv ble.Advertisement) {
	id := adv.Peripheral.ID()

	// Paired devices are supervised, not discovered.
	if m.IsPaired(context.Background(), id) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if entry, ok := m.discovered[id]; ok {
		entry.UpdateAdvertisement(adv)
		return
	}
	m.discovered[id] = NewDiscoveryEntry(adv)
	m.log.Debug("device discovered", "device_id", id, "kind", adv.Kind, "pairing_mode", adv.PairingMode)
}

// handleDeviceLost discards the discovery entry for a device that stopped
// advertising. An in-flight pairing session for it resolves as disconnected.
func (m *Manager) handleDeviceLost(deviceID string) {
	m.mu.Lock()
	entry, ok := m.discovered[deviceID]
	delete(m.discovered, deviceID)
	m.mu.Unlock()

	if !ok {
		return
	}
	entry.SignalState(ble.StateDisconnected)
	m.log.Debug("device no longer advertised", "device_id", deviceID)
}

// handleStateEvent routes link-state transitions: battery readings update
// the record, disconnects resolve in-flight pairing sessions and notify the
// running supervisor.
func (m *Manager) handleStateEvent(ev ble.StateEvent) {
	if ev.BatteryPercent >= 0 {
		m.handleBattery(ev.DeviceID, ev.BatteryPercent)
	}

	if entry := m.entry(ev.DeviceID); entry != nil {
		entry.SignalState(ev.State)
	}

	if ev.State == ble.StateDisconnected {
		m.dispatcher.NotifyDisconnect(ev.DeviceID)
	}
}

// handleBattery persists a battery reading for a paired device.
func (m *Manager) handleBattery(deviceID string, percent int) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	rec, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return // unpaired device, nothing to record
	}
	if err := m.repo.UpdateBattery(ctx, deviceID, percent); err != nil {
		m.log.Error("failed to update battery", "device_id", deviceID, "error", err)
		return
	}
	m.observer.BatteryChanged(deviceID, rec.Kind, percent)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// entry returns the discovery entry for the id, or nil.
func (m *Manager) entry(deviceID string) *DiscoveryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discovered[deviceID]
}

// dropEntry discards the discovery entry for the id.
func (m *Manager) dropEntry(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.discovered, deviceID)
}
