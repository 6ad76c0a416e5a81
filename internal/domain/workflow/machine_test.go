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
		{StateActive, false},
		{StateCompleted, true},
		{StateRejected, true},
		{StateCancelled, true},
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
		{"active", StateActive, true},
		{"cancelled", StateCancelled, true},
		{"unknown state", State("PENDING"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerAdvance.String(); got != "ADVANCE" {
		t.Errorf("Trigger.String() = %v, want %v", got, "ADVANCE")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	NewBuilder().Build(State("INVALID"))
}

func TestStateConfiguration_PermitPanicsOnInvalidState(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Permit() should panic on invalid target state")
		}
	}()

	NewBuilder().Configure(StateActive).Permit(TriggerComplete, State("INVALID"))
}

func TestStateConfiguration_PermitIf_GuardFails(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateActive).
		PermitIf(TriggerComplete, StateCompleted, func(ctx context.Context) bool {
			return false
		})

	machine := builder.Build(StateActive)

	err := machine.Fire(context.Background(), TriggerComplete)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StateActive {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateActive, machine.State())
	}
}

func TestStateConfiguration_PermitIf_FirstPassingGuardWins(t *testing.T) {
	type key struct{}
	builder := NewBuilder()
	builder.Configure(StateActive).
		PermitIf(TriggerComplete, StateRejected, func(ctx context.Context) bool {
			return ctx.Value(key{}) == "reject"
		}).
		PermitIf(TriggerComplete, StateCompleted, nil)

	m1 := builder.Build(StateActive)
	if err := m1.Fire(context.WithValue(context.Background(), key{}, "reject"), TriggerComplete); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m1.State() != StateRejected {
		t.Errorf("State = %v, want %v", m1.State(), StateRejected)
	}

	m2 := builder.Build(StateActive)
	if err := m2.Fire(context.Background(), TriggerComplete); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if m2.State() != StateCompleted {
		t.Errorf("State = %v, want %v", m2.State(), StateCompleted)
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateActive).Permit(TriggerCancel, StateCancelled)

	machine1 := builder.Build(StateActive)
	machine2 := builder.Build(StateActive)

	// configuring after Build must not leak into built machines
	builder.Configure(StateActive).Permit(TriggerReject, StateRejected)

	if err := machine1.Fire(context.Background(), TriggerCancel); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine2.State() != StateActive {
		t.Errorf("machine2 state = %v, want %v", machine2.State(), StateActive)
	}
	if machine2.CanFire(TriggerReject) {
		t.Error("machine2 should not see transitions configured after Build()")
	}
}

func TestInstanceStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		initial   State
		trigger   Trigger
		wantState State
		wantErr   bool
	}{
		{"advance keeps instance active", StateActive, TriggerAdvance, StateActive, false},
		{"complete", StateActive, TriggerComplete, StateCompleted, false},
		{"reject", StateActive, TriggerReject, StateRejected, false},
		{"cancel", StateActive, TriggerCancel, StateCancelled, false},
		{"completed is terminal", StateCompleted, TriggerAdvance, StateCompleted, true},
		{"rejected cannot complete", StateRejected, TriggerComplete, StateRejected, true},
		{"cancelled cannot be cancelled", StateCancelled, TriggerCancel, StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := BuildInstanceStateMachine(tt.initial)
			err := machine.Fire(context.Background(), tt.trigger)

			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
				}
			} else if err != nil {
				t.Errorf("Fire() unexpected error: %v", err)
			}

			if machine.State() != tt.wantState {
				t.Errorf("State = %v, want %v", machine.State(), tt.wantState)
			}
		})
	}
}

func TestInstanceStateMachine_PermittedTriggers(t *testing.T) {
	active := BuildInstanceStateMachine(StateActive).PermittedTriggers()
	want := []Trigger{TriggerAdvance, TriggerCancel, TriggerComplete, TriggerReject}
	if len(active) != len(want) {
		t.Fatalf("PermittedTriggers() = %v, want %v", active, want)
	}
	for i := range want {
		if active[i] != want[i] {
			t.Errorf("PermittedTriggers()[%d] = %v, want %v", i, active[i], want[i])
		}
	}

	for _, s := range []State{StateCompleted, StateRejected, StateCancelled} {
		if got := BuildInstanceStateMachine(s).PermittedTriggers(); len(got) != 0 {
			t.Errorf("%s should have no permitted triggers, got %v", s, got)
		}
	}
}
