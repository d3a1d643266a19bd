package workflow

import "fmt"

// State is one lifecycle state of an operation.
type State string

const (
	// StateRequested is the initial state: the operation is described but
	// nothing has been evaluated.
	StateRequested State = "requested"

	// StateAuthorized means the policy engine permitted the operation.
	StateAuthorized State = "authorized"

	// StateInProgress means the attempted audit entry is durable and side
	// effects may begin.
	StateInProgress State = "in-progress"

	// StateCommitted is the successful terminal state.
	StateCommitted State = "committed"

	// StateRolledBack is the failure terminal state: applied side effects
	// have been reversed, best effort.
	StateRolledBack State = "rolled-back"
)

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// validTransitions is the allowed lifecycle graph. A failure in any
// non-terminal state lands in RolledBack; only InProgress can commit.
var validTransitions = map[State][]State{
	StateRequested:  {StateAuthorized, StateRolledBack},
	StateAuthorized: {StateInProgress, StateRolledBack},
	StateInProgress: {StateCommitted, StateRolledBack},
	StateCommitted:  {},
	StateRolledBack: {},
}

func validTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine tracks one operation through the lifecycle. Transitions outside
// the graph are programming errors and reported as such.
type Machine struct {
	state State
}

// NewMachine starts a machine in Requested.
func NewMachine() *Machine {
	return &Machine{state: StateRequested}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// To advances the machine to next, or fails if the transition is not in the
// lifecycle graph.
func (m *Machine) To(next State) error {
	if !validTransition(m.state, next) {
		return fmt.Errorf("invalid operation state transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}
