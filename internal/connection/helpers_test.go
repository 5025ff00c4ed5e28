package connection

import (
	"context"
	"sync"
	"time"

	"github.com/wearlink/wearlink-core/internal/ble"
	"github.com/wearlink/wearlink-core/internal/device"
)

// fakePeripheral is an inert transport handle for tests.
type fakePeripheral struct {
	id   string
	name string
}

func (p *fakePeripheral) ID() string   { return p.id }
func (p *fakePeripheral) Name() string { return p.name }

// connectResult scripts one Connect call on the fake central.
type connectResult struct {
	err error
	// block, when non-nil, is closed by the test to let the call return.
	block chan struct{}
}

// fakeCentral is a scripted ble.Central. Connect consumes scripted results
// in order; when the script is exhausted it succeeds.
type fakeCentral struct {
	mu sync.Mutex

	power      ble.PowerState
	powerWatch ble.PowerHandler

	stateHandler     ble.StateHandler
	discoveryHandler ble.DiscoveryHandler
	lostHandler      ble.DiscoveryLostHandler

	connectScript []connectResult
	connectCalls  int
	connected     map[string]bool
	disconnects   []string

	retrieveErr error
	retrieved   []string

	watchErr     error
	watchCount   int
	unwatchCount int
}

func newFakeCentral() *fakeCentral {
	return &fakeCentral{
		power:     ble.PowerOn,
		connected: make(map[string]bool),
	}
}

func (c *fakeCentral) RetrieveDevice(ctx context.Context, kind, id string) (ble.Peripheral, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retrieved = append(c.retrieved, id)
	if c.retrieveErr != nil {
		return nil, c.retrieveErr
	}
	return &fakePeripheral{id: id}, nil
}

func (c *fakeCentral) Connect(ctx context.Context, p ble.Peripheral) error {
	c.mu.Lock()
	var res connectResult
	if len(c.connectScript) > 0 {
		res = c.connectScript[0]
		c.connectScript = c.connectScript[1:]
	}
	c.connectCalls++
	c.mu.Unlock()

	if res.block != nil {
		select {
		case <-res.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if res.err != nil {
		return res.err
	}

	c.mu.Lock()
	c.connected[p.ID()] = true
	c.mu.Unlock()
	return nil
}

func (c *fakeCentral) Disconnect(ctx context.Context, p ble.Peripheral) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects = append(c.disconnects, p.ID())
	c.connected[p.ID()] = false
	return nil
}

func (c *fakeCentral) IsConnected(ctx context.Context, p ble.Peripheral) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[p.ID()], nil
}

func (c *fakeCentral) setLinkConnected(id string, connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[id] = connected
}

func (c *fakeCentral) PowerState() ble.PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power
}

func (c *fakeCentral) setPower(state ble.PowerState) {
	c.mu.Lock()
	c.power = state
	handler := c.powerWatch
	c.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

func (c *fakeCentral) WatchPower(handler ble.PowerHandler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchErr != nil {
		return nil, c.watchErr
	}
	c.powerWatch = handler
	c.watchCount++
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.powerWatch = nil
		c.unwatchCount++
	}, nil
}

func (c *fakeCentral) SetStateHandler(handler ble.StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandler = handler
}

func (c *fakeCentral) SetDiscoveryHandler(handler ble.DiscoveryHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoveryHandler = handler
}

func (c *fakeCentral) SetDiscoveryLostHandler(handler ble.DiscoveryLostHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lostHandler = handler
}

func (c *fakeCentral) Close() error { return nil }

func (c *fakeCentral) emitLost(id string) {
	c.mu.Lock()
	handler := c.lostHandler
	c.mu.Unlock()
	if handler != nil {
		handler(id)
	}
}

func (c *fakeCentral) emitState(ev ble.StateEvent) {
	c.mu.Lock()
	handler := c.stateHandler
	c.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

func (c *fakeCentral) emitAdvertisement(adv ble.Advertisement) {
	c.mu.Lock()
	handler := c.discoveryHandler
	c.mu.Unlock()
	if handler != nil {
		handler(adv)
	}
}

func (c *fakeCentral) scriptConnect(results ...connectResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectScript = append(c.connectScript, results...)
}

func (c *fakeCentral) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

func (c *fakeCentral) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.disconnects)
}

func (c *fakeCentral) retrievedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retrieved)
}

func (c *fakeCentral) watchCounts() (watched, unwatched int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchCount, c.unwatchCount
}

// memoryRepository is an in-memory device.Repository for tests.
type memoryRepository struct {
	mu      sync.Mutex
	records map[string]device.Record
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{records: make(map[string]device.Record)}
}

func (r *memoryRepository) GetByID(_ context.Context, id string) (*device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, device.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *memoryRepository) List(_ context.Context) ([]device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryRepository) Create(_ context.Context, rec *device.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return device.ErrRecordExists
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *memoryRepository) Update(_ context.Context, rec *device.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; !ok {
		return device.ErrRecordNotFound
	}
	r.records[rec.ID] = *rec
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return device.ErrRecordNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memoryRepository) UpdateBattery(_ context.Context, id string, percent int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return device.ErrRecordNotFound
	}
	rec.BatteryPercent = percent
	r.records[id] = rec
	return nil
}

func (r *memoryRepository) UpdateLastSeen(_ context.Context, id string, seen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return device.ErrRecordNotFound
	}
	rec.LastSeen = &seen
	r.records[id] = rec
	return nil
}

func (r *memoryRepository) SetNotLocatable(_ context.Context, id string, notLocatable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return device.ErrRecordNotFound
	}
	rec.NotLocatable = notLocatable
	r.records[id] = rec
	return nil
}

func (r *memoryRepository) add(rec device.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
}

func (r *memoryRepository) get(id string) (device.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// recordingObserver captures observer notifications for assertions.
type recordingObserver struct {
	mu sync.Mutex

	connections []connectionEvent
	batteries   []batteryEvent
	failures    []failureEvent
	terminals   []terminalEvent
	paired      []device.Record
	forgotten   []string

	// signal is closed or sent to on every notification when non-nil.
	signal chan struct{}
}

type connectionEvent struct {
	deviceID  string
	kind      device.Kind
	connected bool
}

type batteryEvent struct {
	deviceID string
	percent  int
}

type failureEvent struct {
	deviceID string
	attempt  uint
}

type terminalEvent struct {
	deviceID string
	reason   string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{signal: make(chan struct{}, 64)}
}

func (o *recordingObserver) notify() {
	if o.signal != nil {
		select {
		case o.signal <- struct{}{}:
		default:
		}
	}
}

func (o *recordingObserver) ConnectionChanged(id string, kind device.Kind, connected bool) {
	o.mu.Lock()
	o.connections = append(o.connections, connectionEvent{id, kind, connected})
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) BatteryChanged(id string, kind device.Kind, percent int) {
	o.mu.Lock()
	o.batteries = append(o.batteries, batteryEvent{id, percent})
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) ConnectAttemptFailed(id string, kind device.Kind, attempt uint) {
	o.mu.Lock()
	o.failures = append(o.failures, failureEvent{id, attempt})
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) SupervisorTerminal(id string, kind device.Kind, reason string) {
	o.mu.Lock()
	o.terminals = append(o.terminals, terminalEvent{id, reason})
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) DevicePaired(rec device.Record) {
	o.mu.Lock()
	o.paired = append(o.paired, rec)
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) DeviceForgotten(id string) {
	o.mu.Lock()
	o.forgotten = append(o.forgotten, id)
	o.mu.Unlock()
	o.notify()
}

func (o *recordingObserver) connectionEvents() []connectionEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]connectionEvent(nil), o.connections...)
}

func (o *recordingObserver) terminalEvents() []terminalEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]terminalEvent(nil), o.terminals...)
}

func (o *recordingObserver) failureEvents() []failureEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]failureEvent(nil), o.failures...)
}

func (o *recordingObserver) forgottenIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.forgotten...)
}

// testConfig returns timings tight enough for fast tests.
func testConfig() Config {
	return Config{
		PairingTimeout: 200 * time.Millisecond,
		InitialDelay:   5 * time.Millisecond,
		MaxDelay:       40 * time.Millisecond,
		QuietPeriod:    time.Minute,
		Cooldown:       time.Millisecond,
		PowerDebounce:  20 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
