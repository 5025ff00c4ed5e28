package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wearlink/wearlink-core/internal/ble"
	"github.com/wearlink/wearlink-core/internal/device"
)

// supervisorEvent is delivered into a running supervisor's wait loop.
type supervisorEvent int

const (
	eventDisconnected supervisorEvent = iota
	eventRemoved
)

// disconnectTimeout bounds the transport disconnect issued on removal.
const disconnectTimeout = 5 * time.Second

// maxBackoffShift caps the exponent so the shift cannot overflow; with a
// one-second initial delay the cap is reached long before this anyway.
const maxBackoffShift = 16

// Supervisor keeps one paired device connected.
//
// Run is invoked once per logical "device should be connected" request and
// loops through retrieve, connect, wait-for-disconnect, and backoff until
// cancelled, removed, or terminal. The peripheral handle it binds is
// exclusively owned: the dispatcher guarantees at most one live Run per
// device id, so the handle is never aliased across supervisors.
//
// Terminal conditions (retrieval failure, fatal transport state) end the
// supervisor without self-retry; only the power reconciler starts a fresh
// one when the radio recovers.
type Supervisor struct {
	deviceID string
	kind     device.Kind

	central  ble.Central
	repo     device.Repository
	observer Observer
	cfg      Config
	log      Logger

	// peripheral is accessed only from the Run goroutine once started.
	peripheral ble.Peripheral

	// events carries disconnect/removal notifications into Run.
	// Buffered so notifiers never block on a busy supervisor.
	events chan supervisorEvent

	connected atomic.Bool

	removeMu         sync.Mutex
	removing         bool
	removeDisconnect bool

	// Backoff state, owned by the Run goroutine.
	retries     uint
	lastFailure time.Time
}

// NewSupervisor builds a supervisor for one device. The peripheral may be
// nil; Run will retrieve a fresh handle from the transport.
func NewSupervisor(deviceID string, kind device.Kind, peripheral ble.Peripheral, central ble.Central, repo device.Repository, observer Observer, cfg Config, log Logger) *Supervisor {
	if observer == nil {
		observer = NoopObserver{}
	}
	if log == nil {
		log = noopLogger{}
	}
	return &Supervisor{
		deviceID:   deviceID,
		kind:       kind,
		central:    central,
		repo:       repo,
		observer:   observer,
		cfg:        cfg.withDefaults(),
		log:        log,
		peripheral: peripheral,
		events:     make(chan supervisorEvent, 2),
	}
}

// DeviceID returns the supervised device's identifier.
func (s *Supervisor) DeviceID() string { return s.deviceID }

// Kind returns the supervised device's kind.
func (s *Supervisor) Kind() device.Kind { return s.kind }

// IsConnected reports whether the supervised link is currently up.
func (s *Supervisor) IsConnected() bool { return s.connected.Load() }

// NotifyDisconnected delivers a transport disconnect notification.
// Non-blocking; safe from any goroutine.
func (s *Supervisor) NotifyDisconnected() {
	select {
	case s.events <- eventDisconnected:
	default:
	}
}

// NotifyRemoved marks the device as being forgotten. If disconnect is true
// the supervisor issues a transport disconnect before exiting. Removal
// always suppresses reconnection.
func (s *Supervisor) NotifyRemoved(disconnect bool) {
	s.removeMu.Lock()
	s.removing = true
	s.removeDisconnect = s.removeDisconnect || disconnect
	s.removeMu.Unlock()

	select {
	case s.events <- eventRemoved:
	default:
	}
}

// Run drives the connect lifecycle until the context is cancelled, the
// device is removed, or a terminal condition is reached.
//
// Cancellation is cooperative: checked before retrieval, before connect,
// and across every sleep. A cancelled supervisor exits without side effects
// beyond releasing its handle.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.exit()

	for {
		if s.stopping(ctx) {
			return
		}

		if s.peripheral == nil {
			p, err := s.central.RetrieveDevice(ctx, string(s.kind), s.deviceID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn("device not locatable, supervisor terminal",
					"device_id", s.deviceID, "error", err)
				if repoErr := s.repo.SetNotLocatable(ctx, s.deviceID, true); repoErr != nil {
					s.log.Error("failed to persist not_locatable",
						"device_id", s.deviceID, "error", repoErr)
				}
				s.observer.SupervisorTerminal(s.deviceID, s.kind, "not_locatable")
				return
			}
			s.peripheral = p
			if repoErr := s.repo.SetNotLocatable(ctx, s.deviceID, false); repoErr != nil {
				s.log.Error("failed to clear not_locatable",
					"device_id", s.deviceID, "error", repoErr)
			}
		}

		if s.stopping(ctx) {
			return
		}

		err := s.central.Connect(ctx, s.peripheral)
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			if !s.runConnected(ctx) {
				return
			}
			// Graceful disconnect of a connected device is expected to
			// reconnect quickly: a fixed cooldown, not backoff.
			if !sleepCtx(ctx, s.cfg.Cooldown) {
				return
			}

		case ble.IsFatal(err):
			s.log.Warn("fatal transport state, supervisor terminal",
				"device_id", s.deviceID, "error", err)
			s.observer.SupervisorTerminal(s.deviceID, s.kind, "fatal")
			return

		default:
			delay := s.nextBackoff(time.Now())
			s.observer.ConnectAttemptFailed(s.deviceID, s.kind, s.retries)
			s.log.Debug("connect failed, backing off",
				"device_id", s.deviceID,
				"attempt", s.retries,
				"delay", delay,
				"error", err)
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}
}

// runConnected marks the link up and blocks until a disconnect or removal
// event arrives. Returns true for a graceful disconnect that should loop
// into a reconnect, false when the supervisor must exit.
func (s *Supervisor) runConnected(ctx context.Context) bool {
	s.connected.Store(true)
	s.touchLastSeen(ctx)
	s.observer.ConnectionChanged(s.deviceID, s.kind, true)
	s.log.Info("device connected", "device_id", s.deviceID, "kind", s.kind)

	defer func() {
		s.connected.Store(false)
		s.observer.ConnectionChanged(s.deviceID, s.kind, false)
	}()

	select {
	case <-ctx.Done():
		return false
	case ev := <-s.events:
		if ev == eventRemoved || s.isRemoving() {
			return false
		}
		s.log.Info("device disconnected", "device_id", s.deviceID)
		s.touchLastSeen(ctx)
		return true
	}
}

// exit releases the handle and performs the removal disconnect if one was
// requested. Runs exactly once per Run invocation.
func (s *Supervisor) exit() {
	removing, disconnect := s.removalState()
	if removing && disconnect && s.peripheral != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := s.central.Disconnect(ctx, s.peripheral); err != nil {
			s.log.Warn("removal disconnect failed",
				"device_id", s.deviceID, "error", err)
		}
	}

	s.connected.Store(false)
	s.peripheral = nil
}

// nextBackoff computes min(initial * 2^n, max), resetting n when the gap
// since the previous failure exceeds the quiet period. A long fault-free
// interval is evidence the fault class has cleared.
func (s *Supervisor) nextBackoff(now time.Time) time.Duration {
	if !s.lastFailure.IsZero() && now.Sub(s.lastFailure) > s.cfg.QuietPeriod {
		s.retries = 0
	}

	delay := s.cfg.MaxDelay
	if s.retries < maxBackoffShift {
		if d := s.cfg.InitialDelay << s.retries; d < s.cfg.MaxDelay {
			delay = d
		}
	}

	s.lastFailure = now
	s.retries++
	return delay
}

func (s *Supervisor) touchLastSeen(ctx context.Context) {
	if err := s.repo.UpdateLastSeen(ctx, s.deviceID, time.Now().UTC()); err != nil {
		s.log.Error("failed to update last_seen", "device_id", s.deviceID, "error", err)
	}
}

func (s *Supervisor) stopping(ctx context.Context) bool {
	return ctx.Err() != nil || s.isRemoving()
}

func (s *Supervisor) isRemoving() bool {
	s.removeMu.Lock()
	defer s.removeMu.Unlock()
	return s.removing
}

func (s *Supervisor) removalState() (removing, disconnect bool) {
	s.removeMu.Lock()
	defer s.removeMu.Unlock()
	return s.removing, s.removeDisconnect
}

// sleepCtx sleeps for d unless the context is cancelled first.
// Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
