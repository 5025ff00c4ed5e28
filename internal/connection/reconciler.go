package connection

import (
	"context"
	"sync"
	"time"

	"github.com/wearlink/wearlink-core/internal/ble"
	"github.com/wearlink/wearlink-core/internal/device"
)

// restoreTimeout bounds the record fetch during a bulk restore.
const restoreTimeout = 10 * time.Second

// SupervisorFactory builds a supervisor for one device. The peripheral may
// be nil, in which case the supervisor retrieves a fresh handle itself.
type SupervisorFactory func(deviceID string, kind device.Kind, p ble.Peripheral) *Supervisor

// Reconciler reacts to adapter power-state transitions: it bulk-starts
// supervisors for every persisted device when the radio comes up and bulk
// tears them down, after a debounce window, when it goes down.
//
// All reaction happens in one serialized loop; power notifications from the
// transport are queued into it, never handled inline.
//
// The power subscription is established only while at least one device is
// paired and is released when the paired set empties; the manager drives
// this through EnsureSubscribed and ReleaseSubscription.
type Reconciler struct {
	central    ble.Central
	repo       device.Repository
	dispatcher *Dispatcher
	factory    SupervisorFactory
	cfg        Config
	log        Logger

	events chan ble.PowerState

	done      chan struct{}
	loopDone  chan struct{}
	startOnce sync.Once
	closeOnce sync.Once

	mu      sync.Mutex
	unwatch func()
}

// NewReconciler creates a reconciler. Call Start before use.
func NewReconciler(central ble.Central, repo device.Repository, dispatcher *Dispatcher, factory SupervisorFactory, cfg Config, log Logger) *Reconciler {
	if log == nil {
		log = noopLogger{}
	}
	return &Reconciler{
		central:    central,
		repo:       repo,
		dispatcher: dispatcher,
		factory:    factory,
		cfg:        cfg.withDefaults(),
		log:        log,
		events:     make(chan ble.PowerState, 8),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// Start launches the reconciliation loop.
func (r *Reconciler) Start() {
	r.startOnce.Do(func() {
		go r.loop()
	})
}

// Close releases the power subscription and stops the loop. Idempotent.
// Supervised tasks are left to the dispatcher's own shutdown.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		r.ReleaseSubscription()
		close(r.done)
		<-r.loopDone
	})
}

// HandlePowerState queues a power transition for the loop. Blocks only if
// the queue is full, never handles the event inline.
func (r *Reconciler) HandlePowerState(state ble.PowerState) {
	select {
	case r.events <- state:
	case <-r.done:
	}
}

// EnsureSubscribed establishes the transport power watch if not already
// watching. Called by the manager whenever the paired set becomes
// non-empty.
func (r *Reconciler) EnsureSubscribed() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unwatch != nil {
		return nil
	}
	cancel, err := r.central.WatchPower(r.HandlePowerState)
	if err != nil {
		return err
	}
	r.unwatch = cancel
	r.log.Debug("power subscription established")
	return nil
}

// ReleaseSubscription tears down the power watch. Called by the manager
// when the paired set empties.
func (r *Reconciler) ReleaseSubscription() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unwatch != nil {
		r.unwatch()
		r.unwatch = nil
		r.log.Debug("power subscription released")
	}
}

// Subscribed reports whether the power watch is active.
func (r *Reconciler) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unwatch != nil
}

// loop serializes power-event handling.
func (r *Reconciler) loop() {
	defer close(r.loopDone)

	for {
		select {
		case <-r.done:
			return
		case state := <-r.events:
			if state.Operable() {
				r.restoreAll()
			} else {
				r.teardownAll(state)
			}
		}
	}
}

// restoreAll starts a supervisor for every persisted device. Devices with a
// live task are untouched: the dispatcher's connect is an idempotent no-op
// for them. Supervisors retrieve fresh peripheral handles themselves.
func (r *Reconciler) restoreAll() {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	records, err := r.repo.List(ctx)
	if err != nil {
		r.log.Error("bulk restore: failed to list records", "error", err)
		return
	}

	r.log.Info("radio powered on, restoring connections", "devices", len(records))
	for _, rec := range records {
		r.dispatcher.Connect(r.factory(rec.ID, rec.Kind, nil))
	}
}

// teardownAll waits out the debounce window and, if the radio is still
// down, cancels every supervised device and awaits each task's completion
// so all bound peripheral handles are released before a subsequent
// power-on retrieves fresh ones.
func (r *Reconciler) teardownAll(state ble.PowerState) {
	r.log.Warn("radio not operable", "state", state, "debounce", r.cfg.PowerDebounce)

	if r.cfg.PowerDebounce > 0 {
		timer := time.NewTimer(r.cfg.PowerDebounce)
		defer timer.Stop()

	wait:
		for {
			select {
			case <-r.done:
				return
			case next := <-r.events:
				if next.Operable() {
					// Momentary blip: the radio recovered within the
					// debounce window, so nothing is torn down. The
					// restore still runs: a supervisor may have gone
					// terminal during the outage, and connect is a
					// no-op for the tasks that survived.
					r.log.Info("radio recovered within debounce window")
					r.restoreAll()
					return
				}
				state = next
			case <-timer.C:
				break wait
			}
		}
	}

	ids := r.dispatcher.ActiveIDs()
	r.log.Info("tearing down supervised connections", "state", state, "devices", len(ids))
	for _, id := range ids {
		<-r.dispatcher.Cancel(id)
	}
}
