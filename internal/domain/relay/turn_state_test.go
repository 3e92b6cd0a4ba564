package relay

import (
	"errors"
	"testing"

	"chat-relay/internal/domain/conversation"
)

func TestTurnStateTransitions(t *testing.T) {
	tests := []struct {
		from, to TurnState
		ok       bool
	}{
		{StateIdle, StateStreaming, true},
		{StateStreaming, StateCompleted, true},
		{StateStreaming, StateErrored, true},
		{StateStreaming, StateAborted, true},
		{StateAborted, StatePersisted, true},
		{StatePersisted, StateIdle, true},
		{StateIdle, StateCompleted, false},
		{StateCompleted, StateStreaming, false},
		{StateStreaming, StatePersisted, false},
	}
	for _, tt := range tests {
		got, err := tt.from.TransitionTo(tt.to)
		if tt.ok {
			if err != nil || got != tt.to {
				t.Errorf("%s -> %s: got (%s, %v), want ok", tt.from, tt.to, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidTransition) || got != tt.from {
			t.Errorf("%s -> %s: got (%s, %v), want ErrInvalidTransition", tt.from, tt.to, got, err)
		}
	}
}

func TestTurnStateStatus(t *testing.T) {
	cases := map[TurnState]conversation.TurnStatus{
		StateCompleted: conversation.TurnCompleted,
		StateErrored:   conversation.TurnErrored,
		StateAborted:   conversation.TurnAborted,
	}
	for state, want := range cases {
		if !state.IsOutcome() {
			t.Errorf("%s should be an outcome", state)
		}
		if got := state.TurnStatus(); got != want {
			t.Errorf("%s.TurnStatus() = %s, want %s", state, got, want)
		}
	}
	if StateStreaming.IsOutcome() {
		t.Error("streaming is not an outcome")
	}
}
