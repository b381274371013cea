package workflow

import (
	"context"
	"fmt"
)

// GuardFunc evaluates whether a transition should be allowed.
type GuardFunc func(ctx context.Context) bool

// Machine tracks the current lifecycle state and validates transitions.
type Machine struct {
	current     State
	transitions map[State]map[Trigger][]transition
}

type transition struct {
	toState State
	guard   GuardFunc
}

// Builder configures the transition table for a Machine.
type Builder struct {
	transitions map[State]map[Trigger][]transition
}

// NewBuilder creates an empty transition-table builder.
func NewBuilder() *Builder {
	return &Builder{transitions: make(map[State]map[Trigger][]transition)}
}

// Permit allows trigger to move fromState to toState unconditionally.
func (b *Builder) Permit(fromState State, trigger Trigger, toState State) *Builder {
	return b.PermitIf(fromState, trigger, toState, nil)
}

// PermitIf allows trigger to move fromState to toState when guard passes.
func (b *Builder) PermitIf(fromState State, trigger Trigger, toState State, guard GuardFunc) *Builder {
	if !fromState.IsValid() {
		panic(fmt.Sprintf("invalid source state: %s", fromState))
	}
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	byTrigger, ok := b.transitions[fromState]
	if !ok {
		byTrigger = make(map[Trigger][]transition)
		b.transitions[fromState] = byTrigger
	}
	byTrigger[trigger] = append(byTrigger[trigger], transition{toState: toState, guard: guard})
	return b
}

// Build creates a machine positioned at initialState. The transition table
// is copied so the builder can be reused.
func (b *Builder) Build(initialState State) *Machine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}
	table := make(map[State]map[Trigger][]transition, len(b.transitions))
	for state, byTrigger := range b.transitions {
		copied := make(map[Trigger][]transition, len(byTrigger))
		for trigger, ts := range byTrigger {
			copied[trigger] = append([]transition{}, ts...)
		}
		table[state] = copied
	}
	return &Machine{current: initialState, transitions: table}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger has at least one transition configured
// from the current state. Guards are evaluated by Fire, not here.
func (m *Machine) CanFire(trigger Trigger) bool {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return false
	}
	return len(byTrigger[trigger]) > 0
}

// Fire attempts the trigger, moving to the target state of the first
// transition whose guard passes.
func (m *Machine) Fire(ctx context.Context, trigger Trigger) error {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	ts := byTrigger[trigger]
	if len(ts) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	for _, t := range ts {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.toState
			return nil
		}
	}
	return fmt.Errorf("%w: trigger %s from %s", ErrGuardFailed, trigger, m.current)
}

// PermittedTriggers returns the triggers configured from the current state.
func (m *Machine) PermittedTriggers() []Trigger {
	byTrigger, ok := m.transitions[m.current]
	if !ok {
		return []Trigger{}
	}
	triggers := make([]Trigger, 0, len(byTrigger))
	for trigger := range byTrigger {
		triggers = append(triggers, trigger)
	}
	return triggers
}

// NewImportMachine builds the import lifecycle machine:
// ANALYZED -> {COMMITTED, PARTIALLY_COMMITTED, ERROR} | CANCELLED, with
// committed and error states still cancellable. Cancelled is terminal.
func NewImportMachine(initial State) *Machine {
	b := NewBuilder()
	b.Permit(StateAnalyzed, TriggerCommit, StateCommitted)
	b.Permit(StateAnalyzed, TriggerCommitPartial, StatePartiallyCommitted)
	b.Permit(StateAnalyzed, TriggerIgnore, StateCommitted)
	b.Permit(StateAnalyzed, TriggerFail, StateError)
	b.Permit(StateAnalyzed, TriggerCancel, StateCancelled)
	b.Permit(StateCommitted, TriggerCancel, StateCancelled)
	b.Permit(StatePartiallyCommitted, TriggerCancel, StateCancelled)
	// A failed commit moved no stock but still holds the document's
	// identity; cancelling it frees the key for a corrected re-import.
	b.Permit(StateError, TriggerCancel, StateCancelled)
	return b.Build(initial)
}
