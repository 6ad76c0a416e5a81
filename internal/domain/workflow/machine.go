package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachine tracks the current state of one instance and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state, sorted
	PermittedTriggers() []Trigger
}

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions leaving a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transitionKey struct {
	from    State
	trigger Trigger
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	from  State
	table map[transitionKey][]transition
}

type stateMachineBuilder struct {
	table map[transitionKey][]transition
}

type stateMachine struct {
	current State
	table   map[transitionKey][]transition
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{table: make(map[transitionKey][]transition)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	return &stateConfig{from: state, table: b.table}
}

func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	// Machines built earlier must not see later Configure calls
	table := make(map[transitionKey][]transition, len(b.table))
	for k, ts := range b.table {
		table[k] = append([]transition(nil), ts...)
	}

	return &stateMachine{current: initialState, table: table}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	key := transitionKey{from: c.from, trigger: trigger}
	c.table[key] = append(c.table[key], transition{toState: toState, guard: guard})
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

// CanFire does not evaluate guards; it only reports whether a transition is configured
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.table[transitionKey{from: m.current, trigger: trigger}]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	transitions := m.table[transitionKey{from: m.current, trigger: trigger}]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0)
	for k := range m.table {
		if k.from == m.current {
			triggers = append(triggers, k.trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// BuildInstanceStateMachine creates a state machine for the workflow instance lifecycle.
//
//	ACTIVE --ADVANCE--> ACTIVE
//	ACTIVE --COMPLETE--> COMPLETED
//	ACTIVE --REJECT--> REJECTED
//	ACTIVE --CANCEL--> CANCELLED
func BuildInstanceStateMachine(initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateActive).
		Permit(TriggerAdvance, StateActive).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled)

	// COMPLETED, REJECTED and CANCELLED are terminal

	return builder.Build(initialState)
}
