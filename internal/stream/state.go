package stream

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatdeck/internal/bus"
)

// State represents the stream connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	Closing      State = "CLOSING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Open, Disconnected},
	Open:         {Closing, Disconnected},
	Closing:      {Disconnected},
}

// Machine tracks and enforces stream connection state transitions. The
// manager is its sole writer; the UI observes it through the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindStreamStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for stream status change events.
type StatusChange struct {
	From State
	To   State
}
