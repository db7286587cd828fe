package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wpdl/internal/model"
)

// validTransitions defines allowed session lifecycle transitions.
// Closed is terminal: a reopened session gets a fresh Machine.
var validTransitions = map[model.Lifecycle][]model.Lifecycle{
	model.Uninitialized:  {model.Connecting, model.Closed},
	model.Connecting:     {model.Authenticating, model.Ready, model.Closed},
	model.Authenticating: {model.Connecting, model.Ready, model.Closed},
	model.Ready:          {model.Connecting, model.Authenticating, model.Closed},
	model.Closed:         {},
}

// ChangeFunc observes a committed transition.
type ChangeFunc func(from, to model.Lifecycle)

// Machine tracks and enforces session lifecycle transitions.
type Machine struct {
	mu       sync.RWMutex
	current  model.Lifecycle
	onChange ChangeFunc
}

// NewMachine creates a machine in the Uninitialized state. onChange may be nil.
func NewMachine(onChange ChangeFunc) *Machine {
	return &Machine{
		current:  model.Uninitialized,
		onChange: onChange,
	}
}

// Current returns the current state.
func (m *Machine) Current() model.Lifecycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to model.Lifecycle) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !slices.Contains(validTransitions[from], to) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	m.current = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

// ForAuth maps an auth state push onto the lifecycle state it implies.
func ForAuth(s model.AuthState) model.Lifecycle {
	if s == model.AuthReady {
		return model.Ready
	}
	return model.Authenticating
}
