package live

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a [Client].
type State int32

const (
	// StateIdle is the state of a client that never connected.
	StateIdle State = iota

	// StateConnecting covers audio setup and the remote handshake.
	StateConnecting

	// StateOpen means the session is established and audio flows.
	StateOpen

	// StateClosing is held while resources are being released.
	StateClosing

	// StateClosed is reached after teardown. Connect may be called again.
	StateClosed
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// validTransition reports whether from → to is an edge of the lifecycle.
func validTransition(from, to State) bool {
	switch from {
	case StateIdle, StateClosed:
		return to == StateConnecting
	case StateConnecting:
		return to == StateOpen || to == StateClosing
	case StateOpen:
		return to == StateClosing
	case StateClosing:
		return to == StateClosed
	}
	return false
}

// stateMachine holds a State and enforces the lifecycle edges atomically.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) Load() State { return State(m.v.Load()) }

// transition moves from → to if the machine is currently in from.
func (m *stateMachine) transition(from, to State) error {
	if !validTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrIllegalTransition, from, to)
	}
	if !m.v.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("%w: %s → %s (current state %s)", ErrIllegalTransition, from, to, m.Load())
	}
	return nil
}

// transitionFromAny tries each source state in order and returns the one that
// succeeded.
func (m *stateMachine) transitionFromAny(to State, from ...State) (State, error) {
	for _, f := range from {
		if m.transition(f, to) == nil {
			return f, nil
		}
	}
	return m.Load(), fmt.Errorf("%w: %s → %s", ErrIllegalTransition, m.Load(), to)
}
