package snapshot

import (
	"fmt"
	"sync/atomic"

	"github.com/containerd/log"
)

// State is the externally visible admission state of the coordinator.
type State int32

const (
	// StateAvailable accepts a new operation.
	StateAvailable State = iota

	// StateBusy means an operation is in flight; new requests are rejected.
	StateBusy
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// StateMachine is the single-flight admission gate.
// Available -> Busy -> Available, strictly alternating.
type StateMachine struct {
	state atomic.Int32
}

// NewStateMachine creates a gate in the Available state.
func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// State returns the current state.
func (sm *StateMachine) State() State {
	return State(sm.state.Load())
}

// TryAcquire moves Available -> Busy as one atomic decision.
// Returns false, with no side effects, if an operation is already in flight.
func (sm *StateMachine) TryAcquire() bool {
	return sm.state.CompareAndSwap(int32(StateAvailable), int32(StateBusy))
}

// Release moves Busy -> Available. Releasing a gate that is not Busy is a
// programming error; it is reported and leaves the state untouched.
func (sm *StateMachine) Release() error {
	if !sm.state.CompareAndSwap(int32(StateBusy), int32(StateAvailable)) {
		current := sm.State()
		log.L.WithField("state", current.String()).Error("release of admission gate that is not busy")
		return NewStateTransitionError(StateBusy.String(), StateAvailable.String(), current.String())
	}
	return nil
}

// IsBusy returns true if an operation is in flight.
func (sm *StateMachine) IsBusy() bool {
	return sm.State() == StateBusy
}
