package workflow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateAnalyzed, false},
		{StateCommitted, false},
		{StatePartiallyCommitted, false},
		{StateCancelled, true},
		{StateError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"analyzed", StateAnalyzed, true},
		{"cancelled", StateCancelled, true},
		{"unknown", State("UNKNOWN"), false},
		{"empty", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_PermitIfPanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("PermitIf() should panic on invalid state")
		}
	}()

	NewBuilder().Permit(State("BOGUS"), TriggerCommit, StateCommitted)
}

func TestMachine_FireMovesState(t *testing.T) {
	b := NewBuilder()
	b.Permit(StateAnalyzed, TriggerCommit, StateCommitted)
	m := b.Build(StateAnalyzed)

	if !m.CanFire(TriggerCommit) {
		t.Error("CanFire() should return true for permitted trigger")
	}

	if err := m.Fire(context.Background(), TriggerCommit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}

	if m.State() != StateCommitted {
		t.Errorf("State after Fire() = %v, want %v", m.State(), StateCommitted)
	}
}

func TestMachine_FireRejectsUnknownTrigger(t *testing.T) {
	b := NewBuilder()
	b.Permit(StateAnalyzed, TriggerCommit, StateCommitted)
	m := b.Build(StateAnalyzed)

	err := m.Fire(context.Background(), TriggerCancel)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want ErrInvalidTransition", err)
	}
	if m.State() != StateAnalyzed {
		t.Errorf("state changed on rejected trigger: %v", m.State())
	}
}

func TestMachine_GuardFailure(t *testing.T) {
	b := NewBuilder()
	b.PermitIf(StateAnalyzed, TriggerCommit, StateCommitted, func(ctx context.Context) bool {
		return false
	})
	m := b.Build(StateAnalyzed)

	err := m.Fire(context.Background(), TriggerCommit)
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want ErrGuardFailed", err)
	}
}

func TestMachine_GuardFallthrough(t *testing.T) {
	b := NewBuilder()
	b.PermitIf(StateAnalyzed, TriggerCommit, StateError, func(ctx context.Context) bool {
		return false
	})
	b.Permit(StateAnalyzed, TriggerCommit, StateCommitted)
	m := b.Build(StateAnalyzed)

	if err := m.Fire(context.Background(), TriggerCommit); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m.State() != StateCommitted {
		t.Errorf("State = %v, want %v", m.State(), StateCommitted)
	}
}

func TestImportMachine_Lifecycle(t *testing.T) {
	tests := []struct {
		name    string
		initial State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{"analyzed commits", StateAnalyzed, TriggerCommit, StateCommitted, false},
		{"analyzed commits partially", StateAnalyzed, TriggerCommitPartial, StatePartiallyCommitted, false},
		{"analyzed ignored records as committed", StateAnalyzed, TriggerIgnore, StateCommitted, false},
		{"analyzed can be cancelled", StateAnalyzed, TriggerCancel, StateCancelled, false},
		{"committed can be cancelled", StateCommitted, TriggerCancel, StateCancelled, false},
		{"partially committed can be cancelled", StatePartiallyCommitted, TriggerCancel, StateCancelled, false},
		{"error can be cancelled", StateError, TriggerCancel, StateCancelled, false},
		{"cancelled is terminal", StateCancelled, TriggerCancel, StateCancelled, true},
		{"committed cannot recommit", StateCommitted, TriggerCommit, StateCommitted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewImportMachine(tt.initial)
			err := m.Fire(context.Background(), tt.trigger)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Fire() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fire() failed: %v", err)
			}
			if m.State() != tt.want {
				t.Errorf("State = %v, want %v", m.State(), tt.want)
			}
		})
	}
}

func TestMachine_PermittedTriggers(t *testing.T) {
	m := NewImportMachine(StateCancelled)
	if got := m.PermittedTriggers(); len(got) != 0 {
		t.Errorf("PermittedTriggers() from terminal state = %v, want none", got)
	}
}
