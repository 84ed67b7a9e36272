package transport

import (
	"fmt"
)

// State is the transport state of a session. Exactly one State is active
// per session at any time.
type State int

const (
	// StateDisconnected is the initial and final state.
	StateDisconnected State = iota
	// StateConnecting means the persistent-channel open attempt is in flight.
	StateConnecting
	// StateLive means the persistent channel is open and used for the next send.
	StateLive
	// StateDegraded means sends use discrete calls for the remainder of the
	// session. There is no automatic path out of Degraded.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDegraded:
		return "degraded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Machine is the transport state machine, separated from any network or
// timer so transitions can be tested on their own. It is not safe for
// concurrent use; the reconciler guards it with its own mutex.
type Machine struct {
	state State
}

// NewMachine returns a machine in StateDisconnected.
func NewMachine() *Machine {
	return &Machine{state: StateDisconnected}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// To moves the machine to next, or returns an error if the transition is
// not part of the session lifecycle.
func (m *Machine) To(next State) error {
	if !canTransition(m.state, next) {
		return fmt.Errorf("illegal transport transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

func canTransition(from, to State) bool {
	switch from {
	case StateDisconnected:
		return to == StateConnecting
	case StateConnecting:
		// Teardown during the open attempt is allowed.
		return to == StateLive || to == StateDegraded || to == StateDisconnected
	case StateLive:
		return to == StateDegraded || to == StateDisconnected
	case StateDegraded:
		return to == StateDisconnected
	}
	return false
}
