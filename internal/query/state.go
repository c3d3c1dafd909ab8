package query

import (
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle phase of a query or mutation.
type State string

// States shared by queries and mutations.
const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// ErrInvalidTransition is returned for a transition the table does not allow.
var ErrInvalidTransition = errors.New("query: invalid state transition")

// queryTransitions: a query may refetch from any settled state. A flight
// whose result is discarded goes back to idle.
var queryTransitions = map[State][]State{
	StateIdle:    {StateLoading},
	StateLoading: {StateSuccess, StateError, StateIdle},
	StateSuccess: {StateLoading},
	StateError:   {StateLoading},
}

// mutationTransitions: there is no retry state, a settled mutation goes back
// to idle and must be triggered again.
var mutationTransitions = map[State][]State{
	StateIdle:       {StateSubmitting},
	StateSubmitting: {StateSuccess, StateError},
	StateSuccess:    {StateIdle},
	StateError:      {StateIdle},
}

// Machine is a small finite state machine over a fixed transition table.
type Machine struct {
	name    string
	mu      sync.Mutex
	state   State
	allowed map[State]map[State]bool
	hooks   []func(from, to State)
}

func newMachine(name string, table map[State][]State) *Machine {
	allowed := make(map[State]map[State]bool, len(table))
	for from, tos := range table {
		allowed[from] = make(map[State]bool, len(tos))
		for _, to := range tos {
			allowed[from][to] = true
		}
	}
	return &Machine{name: name, state: StateIdle, allowed: allowed}
}

// NewQueryMachine returns Idle -> Loading -> Success | Error | Idle.
func NewQueryMachine(name string) *Machine { return newMachine(name, queryTransitions) }

// NewMutationMachine returns Idle -> Submitting -> Success | Error -> Idle.
func NewMutationMachine(name string) *Machine { return newMachine(name, mutationTransitions) }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanTransition reports whether to is reachable from the current state.
func (m *Machine) CanTransition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowed[m.state][to]
}

// OnTransition registers fn to run after every transition. Hooks run outside
// the machine lock.
func (m *Machine) OnTransition(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Transition moves to the given state.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !m.allowed[from][to] {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, m.name, from, to)
	}
	m.state = to
	hooks := append([]func(from, to State){}, m.hooks...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(from, to)
	}
	return nil
}

// transitionFrom moves to the given state only if the machine is currently in
// from. It reports whether the transition happened.
func (m *Machine) transitionFrom(from, to State) bool {
	m.mu.Lock()
	if m.state != from || !m.allowed[from][to] {
		m.mu.Unlock()
		return false
	}
	m.state = to
	hooks := append([]func(from, to State){}, m.hooks...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn(from, to)
	}
	return true
}
