package relay

import (
	"errors"
	"fmt"

	"chat-relay/internal/domain/conversation"
)

// TurnState is the lifecycle position of one relayed turn.
type TurnState string

const (
	StateIdle      TurnState = "idle"
	StateStreaming TurnState = "streaming"
	StateCompleted TurnState = "completed"
	StateErrored   TurnState = "errored"
	StateAborted   TurnState = "aborted"
	StatePersisted TurnState = "persisted"
)

// ErrInvalidTransition is returned when a turn state change is not allowed.
var ErrInvalidTransition = errors.New("invalid turn state transition")

var validTurnTransitions = map[TurnState][]TurnState{
	StateIdle:      {StateStreaming},
	StateStreaming: {StateCompleted, StateErrored, StateAborted},
	StateCompleted: {StatePersisted},
	StateErrored:   {StatePersisted},
	StateAborted:   {StatePersisted},
	StatePersisted: {StateIdle},
}

// IsOutcome reports whether s is one of the three terminal pre-states.
func (s TurnState) IsOutcome() bool {
	return s == StateCompleted || s == StateErrored || s == StateAborted
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s TurnState) CanTransitionTo(target TurnState) bool {
	for _, t := range validTurnTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo returns target, or s and ErrInvalidTransition.
func (s TurnState) TransitionTo(target TurnState) (TurnState, error) {
	if !s.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
	}
	return target, nil
}

// TurnStatus maps an outcome onto the status stored with the assistant message.
func (s TurnState) TurnStatus() conversation.TurnStatus {
	switch s {
	case StateAborted:
		return conversation.TurnAborted
	case StateErrored:
		return conversation.TurnErrored
	default:
		return conversation.TurnCompleted
	}
}
