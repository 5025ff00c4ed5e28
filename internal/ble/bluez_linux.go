//go:build linux

package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	dbus "github.com/godbus/dbus/v5"
)

const (
	bluezService    = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	batteryIface    = "org.bluez.Battery1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	propsIface      = "org.freedesktop.DBus.Properties"

	signalBufferSize = 32
)

// BluezCentral implements Central against BlueZ over the system D-Bus.
//
// Peripheral ids are Bluetooth device addresses ("AA:BB:CC:DD:EE:FF");
// BlueZ object paths are derived from them deterministically, so a handle
// can be re-resolved after the daemon or the adapter restarts.
type BluezCentral struct {
	mu     sync.Mutex
	closed bool

	bus         *dbus.Conn
	adapterPath dbus.ObjectPath

	power                PowerState
	powerHandler         PowerHandler
	stateHandler         StateHandler
	discoveryHandler     DiscoveryHandler
	discoveryLostHandler DiscoveryLostHandler

	sigCh chan *dbus.Signal

	// cleanup functions run once in Close, in reverse order.
	cleanup []func()
}

// bluezPeripheral is the Peripheral handle backed by a Device1 object path.
type bluezPeripheral struct {
	path dbus.ObjectPath
	id   string
	name string
}

func (p *bluezPeripheral) ID() string   { return p.id }
func (p *bluezPeripheral) Name() string { return p.name }

// NewBluezCentral connects to the system bus and binds to the named adapter
// (e.g. "hci0").
//
// It reads the adapter's initial power state and subscribes to
// PropertiesChanged, InterfacesAdded, and InterfacesRemoved signals; a
// background goroutine routes them to the registered handlers until Close.
func NewBluezCentral(adapter string) (*BluezCentral, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect system bus: %w", err)
	}

	c := &BluezCentral{
		bus:         bus,
		adapterPath: dbus.ObjectPath("/org/bluez/" + adapter),
		power:       PowerUnknown,
	}
	c.cleanup = append(c.cleanup, func() { bus.Close() })

	// Verify the adapter exists and read its initial power state.
	var poweredVar dbus.Variant
	call := bus.Object(bluezService, c.adapterPath).Call(propsIface+".Get", 0, adapterIface, "Powered")
	if call.Err != nil {
		bus.Close()
		return nil, fmt.Errorf("%w: adapter %s: %v", ErrUnsupported, adapter, call.Err)
	}
	if err := call.Store(&poweredVar); err != nil {
		bus.Close()
		return nil, fmt.Errorf("ble: decode adapter state: %w", err)
	}
	if powered, ok := poweredVar.Value().(bool); ok {
		if powered {
			c.power = PowerOn
		} else {
			c.power = PowerOff
		}
	}

	// Subscribe to signals for power, link state, and discovery.
	matches := [][]dbus.MatchOption{
		{dbus.WithMatchInterface(propsIface), dbus.WithMatchMember("PropertiesChanged")},
		{dbus.WithMatchInterface(objManagerIface), dbus.WithMatchMember("InterfacesAdded")},
		{dbus.WithMatchInterface(objManagerIface), dbus.WithMatchMember("InterfacesRemoved")},
	}
	for _, opts := range matches {
		opts := opts
		if err := bus.AddMatchSignal(opts...); err != nil {
			bus.Close()
			return nil, fmt.Errorf("ble: add match signal: %w", err)
		}
		c.cleanup = append(c.cleanup, func() { _ = bus.RemoveMatchSignal(opts...) })
	}

	c.sigCh = make(chan *dbus.Signal, signalBufferSize)
	bus.Signal(c.sigCh)
	c.cleanup = append(c.cleanup, func() { bus.RemoveSignal(c.sigCh) })

	go c.signalLoop()

	return c, nil
}

// RetrieveDevice resolves a fresh handle for a persisted device.
//
// The object path is derived from the address; if BlueZ no longer knows the
// device (cache evicted, adapter replaced) ErrDeviceNotFound is returned and
// the caller marks the record not locatable.
func (c *BluezCentral) RetrieveDevice(ctx context.Context, kind string, id string) (Peripheral, error) {
	_ = kind // BlueZ resolves by address alone; kind is for the caller's bookkeeping.

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	bus := c.bus
	path := c.devicePath(id)
	c.mu.Unlock()

	obj := bus.Object(bluezService, path)
	var nameVar dbus.Variant
	call := obj.CallWithContext(ctx, propsIface+".Get", 0, deviceIface, "Alias")
	if call.Err != nil {
		if isDBusNotFound(call.Err) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
		}
		return nil, fmt.Errorf("ble: retrieve %s: %w", id, call.Err)
	}
	name := ""
	if err := call.Store(&nameVar); err == nil {
		name, _ = nameVar.Value().(string)
	}

	return &bluezPeripheral{path: path, id: id, name: name}, nil
}

// Connect establishes a link via Device1.Connect.
func (c *BluezCentral) Connect(ctx context.Context, p Peripheral) error {
	bp, ok := p.(*bluezPeripheral)
	if !ok {
		return fmt.Errorf("%w: foreign peripheral handle", ErrConnectFailed)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.power.Operable() {
		c.mu.Unlock()
		return ErrNotPowered
	}
	bus := c.bus
	c.mu.Unlock()

	call := bus.Object(bluezService, bp.path).CallWithContext(ctx, deviceIface+".Connect", 0)
	if call.Err != nil {
		return classifyConnectError(call.Err)
	}
	return nil
}

// Disconnect tears down the link via Device1.Disconnect.
func (c *BluezCentral) Disconnect(ctx context.Context, p Peripheral) error {
	bp, ok := p.(*bluezPeripheral)
	if !ok {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	bus := c.bus
	c.mu.Unlock()

	call := bus.Object(bluezService, bp.path).CallWithContext(ctx, deviceIface+".Disconnect", 0)
	if call.Err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", bp.id, call.Err)
	}
	return nil
}

// IsConnected reads Device1.Connected for the peripheral. A device BlueZ no
// longer knows about reports false without error.
func (c *BluezCentral) IsConnected(ctx context.Context, p Peripheral) (bool, error) {
	bp, ok := p.(*bluezPeripheral)
	if !ok {
		return false, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	bus := c.bus
	c.mu.Unlock()

	var connectedVar dbus.Variant
	call := bus.Object(bluezService, bp.path).CallWithContext(ctx, propsIface+".Get", 0, deviceIface, "Connected")
	if call.Err != nil {
		if isDBusNotFound(call.Err) {
			return false, nil
		}
		return false, fmt.Errorf("ble: link state %s: %w", bp.id, call.Err)
	}
	if err := call.Store(&connectedVar); err != nil {
		return false, fmt.Errorf("ble: decode link state %s: %w", bp.id, err)
	}
	connected, _ := connectedVar.Value().(bool)
	return connected, nil
}

// PowerState returns the last known adapter power state.
func (c *BluezCentral) PowerState() PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

// WatchPower registers the power-state handler.
func (c *BluezCentral) WatchPower(handler PowerHandler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.powerHandler != nil {
		return nil, fmt.Errorf("ble: power watch already registered")
	}
	c.powerHandler = handler
	return func() {
		c.mu.Lock()
		c.powerHandler = nil
		c.mu.Unlock()
	}, nil
}

// SetStateHandler registers the peripheral link-state handler.
func (c *BluezCentral) SetStateHandler(handler StateHandler) {
	c.mu.Lock()
	c.stateHandler = handler
	c.mu.Unlock()
}

// SetDiscoveryHandler registers the advertisement handler.
func (c *BluezCentral) SetDiscoveryHandler(handler DiscoveryHandler) {
	c.mu.Lock()
	c.discoveryHandler = handler
	c.mu.Unlock()
}

// SetDiscoveryLostHandler registers the handler for devices whose Device1
// object BlueZ removes, which is how an expired advertisement surfaces.
func (c *BluezCentral) SetDiscoveryLostHandler(handler DiscoveryLostHandler) {
	c.mu.Lock()
	c.discoveryLostHandler = handler
	c.mu.Unlock()
}

// StartDiscovery asks the adapter to scan for nearby devices. Advertisements
// arrive via the discovery handler.
func (c *BluezCentral) StartDiscovery(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	bus := c.bus
	path := c.adapterPath
	c.mu.Unlock()

	call := bus.Object(bluezService, path).CallWithContext(ctx, adapterIface+".StartDiscovery", 0)
	if call.Err != nil {
		return fmt.Errorf("ble: start discovery: %w", call.Err)
	}
	return nil
}

// StopDiscovery stops an active scan. Best-effort.
func (c *BluezCentral) StopDiscovery(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	bus := c.bus
	path := c.adapterPath
	c.mu.Unlock()

	call := bus.Object(bluezService, path).CallWithContext(ctx, adapterIface+".StopDiscovery", 0)
	if call.Err != nil {
		return fmt.Errorf("ble: stop discovery: %w", call.Err)
	}
	return nil
}

// Close releases the bus and signal subscriptions. Idempotent.
func (c *BluezCentral) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	for i := len(cleanup) - 1; i >= 0; i-- {
		if cleanup[i] != nil {
			cleanup[i]()
		}
	}
	return nil
}

// signalLoop routes D-Bus signals to the registered handlers until the
// signal channel is closed by Close.
func (c *BluezCentral) signalLoop() {
	for sig := range c.sigCh {
		if sig == nil {
			continue
		}
		switch sig.Name {
		case propsIface + ".PropertiesChanged":
			c.handlePropertiesChanged(sig)
		case objManagerIface + ".InterfacesAdded":
			c.handleInterfacesAdded(sig)
		case objManagerIface + ".InterfacesRemoved":
			c.handleInterfacesRemoved(sig)
		}
	}
}

func (c *BluezCentral) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	if changed == nil {
		return
	}

	switch iface {
	case adapterIface:
		if sig.Path != c.adapterPath {
			return
		}
		v, ok := changed["Powered"]
		if !ok {
			return
		}
		powered, _ := v.Value().(bool)
		c.dispatchPower(powered)

	case deviceIface:
		v, ok := changed["Connected"]
		if !ok {
			return
		}
		connected, _ := v.Value().(bool)
		state := StateDisconnected
		if connected {
			state = StateConnected
		}
		c.dispatchState(StateEvent{
			DeviceID:       addressFromPath(sig.Path),
			State:          state,
			BatteryPercent: -1,
		})

	case batteryIface:
		v, ok := changed["Percentage"]
		if !ok {
			return
		}
		pct, _ := v.Value().(byte)
		c.dispatchState(StateEvent{
			DeviceID:       addressFromPath(sig.Path),
			State:          StateConnected,
			BatteryPercent: int(pct),
		})
	}
}

func (c *BluezCentral) handleInterfacesAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, _ := sig.Body[0].(dbus.ObjectPath)
	ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
	props, ok := ifaces[deviceIface]
	if !ok {
		return
	}

	id := addressFromPath(path)
	if v, ok := props["Address"]; ok {
		if addr, ok := v.Value().(string); ok && addr != "" {
			id = addr
		}
	}
	if id == "" {
		return
	}

	var name, icon string
	paired := false
	var rssi int16
	if v, ok := props["Alias"]; ok {
		name, _ = v.Value().(string)
	}
	if v, ok := props["Icon"]; ok {
		icon, _ = v.Value().(string)
	}
	if v, ok := props["Paired"]; ok {
		paired, _ = v.Value().(bool)
	}
	if v, ok := props["RSSI"]; ok {
		rssi, _ = v.Value().(int16)
	}

	c.mu.Lock()
	handler := c.discoveryHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	handler(Advertisement{
		Peripheral:  &bluezPeripheral{path: path, id: id, name: name},
		Kind:        kindFromIcon(icon),
		PairingMode: !paired,
		RSSI:        rssi,
	})
}

func (c *BluezCentral) handleInterfacesRemoved(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	path, _ := sig.Body[0].(dbus.ObjectPath)
	ifaces, _ := sig.Body[1].([]string)

	removed := false
	for _, iface := range ifaces {
		if iface == deviceIface {
			removed = true
			break
		}
	}
	if !removed {
		return
	}

	id := addressFromPath(path)
	if id == "" {
		return
	}

	c.mu.Lock()
	handler := c.discoveryLostHandler
	c.mu.Unlock()
	if handler != nil {
		handler(id)
	}
}

func (c *BluezCentral) dispatchPower(powered bool) {
	state := PowerOff
	if powered {
		state = PowerOn
	}

	c.mu.Lock()
	c.power = state
	handler := c.powerHandler
	c.mu.Unlock()

	if handler != nil {
		handler(state)
	}
}

func (c *BluezCentral) dispatchState(ev StateEvent) {
	if ev.DeviceID == "" {
		return
	}
	c.mu.Lock()
	handler := c.stateHandler
	c.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// devicePath derives the Device1 object path for an address under the bound
// adapter: AA:BB:CC:DD:EE:FF -> <adapter>/dev_AA_BB_CC_DD_EE_FF.
func (c *BluezCentral) devicePath(id string) dbus.ObjectPath {
	return dbus.ObjectPath(string(c.adapterPath) + "/dev_" + strings.ReplaceAll(id, ":", "_"))
}

// addressFromPath recovers the device address from a Device1 object path.
// Returns "" for non-device paths.
func addressFromPath(p dbus.ObjectPath) string {
	s := string(p)
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

// kindFromIcon maps a BlueZ icon hint onto a Wearlink device kind.
// Unknown icons yield "" and the caller classifies by other means.
func kindFromIcon(icon string) string {
	switch icon {
	case "phone-watch", "watch":
		return "watch"
	case "scale":
		return "scale"
	case "thermometer":
		return "thermometer"
	case "toothbrush":
		return "toothbrush"
	default:
		return ""
	}
}

// classifyConnectError maps a D-Bus connect failure onto the transport error
// taxonomy: NotReady means the radio is down (fatal), AlreadyConnected means
// the link is already up (success), everything else is retryable.
func classifyConnectError(err error) error {
	var dbusErr dbus.Error
	if asDBusError(err, &dbusErr) {
		switch dbusErr.Name {
		case "org.bluez.Error.NotReady":
			return fmt.Errorf("%w: %v", ErrNotPowered, err)
		case "org.bluez.Error.AlreadyConnected":
			// The desired state already holds; treat as a successful
			// connect so callers holding an established link do not
			// spin through their retry policy.
			return nil
		case "org.freedesktop.DBus.Error.AccessDenied":
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrConnectFailed, err)
}

func isDBusNotFound(err error) bool {
	var dbusErr dbus.Error
	if !asDBusError(err, &dbusErr) {
		return false
	}
	switch dbusErr.Name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.bluez.Error.DoesNotExist":
		return true
	}
	return false
}

func asDBusError(err error, target *dbus.Error) bool {
	de, ok := err.(dbus.Error)
	if ok {
		*target = de
		return true
	}
	return false
}
