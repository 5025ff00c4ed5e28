package connection

import "sync"

// PairingOutcome is the single result a pairing session resolves to.
type PairingOutcome int

const (
	OutcomePaired PairingOutcome = iota
	OutcomeTimeout
	OutcomeDisconnected
	OutcomeCancelled
)

// String returns the lowercase name of the outcome.
func (o PairingOutcome) String() string {
	switch o {
	case OutcomePaired:
		return "paired"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeDisconnected:
		return "disconnected"
	default:
		return "cancelled"
	}
}

// PairingSession is a one-shot handshake primitive bridging an asynchronous
// wait with external paired/disconnected/timeout/cancel signals.
//
// Start hands out a single outstanding outcome channel. The four signal
// methods resolve it idempotently: the first signal wins, every later signal
// is a no-op. The caller awaiting the channel observes exactly one outcome.
//
// Resolution can come from a different goroutine than the awaiting caller
// (a transport notification handler), so all state is mutex-guarded.
type PairingSession struct {
	mu       sync.Mutex
	ch       chan PairingOutcome
	resolved bool
}

// NewPairingSession creates an idle session with no outstanding handle.
func NewPairingSession() *PairingSession {
	return &PairingSession{}
}

// Start issues the outcome channel for one handshake.
//
// Returns ErrSessionActive if a previous handle is still unresolved. After
// a handle resolves, Start may be called again for a fresh handshake.
func (s *PairingSession) Start() (<-chan PairingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil && !s.resolved {
		return nil, ErrSessionActive
	}

	// Buffered so resolution never blocks the signalling goroutine.
	s.ch = make(chan PairingOutcome, 1)
	s.resolved = false
	return s.ch, nil
}

// Active reports whether an unresolved handle is outstanding.
func (s *PairingSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch != nil && !s.resolved
}

// Paired resolves the outstanding handle with success.
func (s *PairingSession) Paired() bool { return s.resolve(OutcomePaired) }

// Disconnected resolves the outstanding handle as disconnected.
func (s *PairingSession) Disconnected() bool { return s.resolve(OutcomeDisconnected) }

// Timeout resolves the outstanding handle as timed out.
func (s *PairingSession) Timeout() bool { return s.resolve(OutcomeTimeout) }

// Cancel resolves the outstanding handle as cancelled.
func (s *PairingSession) Cancel() bool { return s.resolve(OutcomeCancelled) }

// resolve delivers the outcome exactly once. Returns whether this call won
// the resolution; losers are silent no-ops.
func (s *PairingSession) resolve(outcome PairingOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch == nil || s.resolved {
		return false
	}
	s.resolved = true
	s.ch <- outcome
	return true
}
