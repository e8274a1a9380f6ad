package batch

import (
	"fmt"
	"time"
)

// BatchState represents where a batch is in its capture/flush lifecycle.
type BatchState int

const (
	// IDLE indicates an empty batch ready to capture position 0.
	IDLE BatchState = iota
	// CAPTURING indicates at least one call has been captured.
	CAPTURING
	// FLUSHING indicates the single real exchange is in progress.
	FLUSHING
	// FLUSHED indicates the batch completed; capture requires Reset first.
	FLUSHED
)

// String returns the string representation of the batch state.
func (s BatchState) String() string {
	switch s {
	case IDLE:
		return "IDLE"
	case CAPTURING:
		return "CAPTURING"
	case FLUSHING:
		return "FLUSHING"
	case FLUSHED:
		return "FLUSHED"
	default:
		return "UNKNOWN"
	}
}

// StateTransition represents a change in batch state.
//
// Standard Metadata Keys:
//   - calls: int - number of captured calls at the time of the transition
//   - reason: string - "capture" | "flush" | "reset"
type StateTransition struct {
	From      BatchState
	To        BatchState
	Timestamp time.Time
	// Duration is how long the previous state was held.
	Duration time.Duration
	Metadata map[string]interface{}
}

// StateChangeHandler is called after the batch state changes.
type StateChangeHandler func(transition StateTransition)

// stateManager tracks the batch state. It is not safe for concurrent use;
// the Recorder serializes access under its own lock.
type stateManager struct {
	current        BatchState
	lastTransition time.Time
	handlers       []StateChangeHandler
}

func newStateManager() *stateManager {
	return &stateManager{
		current:        IDLE,
		lastTransition: time.Now(),
	}
}

// transitionTo validates and applies a transition, returning the event to
// deliver to handlers once the caller has released its lock.
//
// Legal transitions:
//   - IDLE → CAPTURING (first capture)
//   - IDLE → FLUSHING (flush of an empty batch)
//   - CAPTURING → FLUSHING
//   - CAPTURING → IDLE (reset)
//   - FLUSHING → FLUSHED
//   - FLUSHED → IDLE (reset)
func (sm *stateManager) transitionTo(to BatchState, metadata map[string]interface{}) (StateTransition, error) {
	if !isLegalTransition(sm.current, to) {
		return StateTransition{}, fmt.Errorf("illegal batch state transition: %s → %s", sm.current, to)
	}

	now := time.Now()
	transition := StateTransition{
		From:      sm.current,
		To:        to,
		Timestamp: now,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}
	sm.current = to
	sm.lastTransition = now
	return transition, nil
}

func isLegalTransition(from, to BatchState) bool {
	switch from {
	case IDLE:
		return to == CAPTURING || to == FLUSHING
	case CAPTURING:
		return to == FLUSHING || to == IDLE
	case FLUSHING:
		return to == FLUSHED
	case FLUSHED:
		return to == IDLE
	default:
		return false
	}
}

// notify delivers a transition to a snapshot of the handlers.
func notify(handlers []StateChangeHandler, transition StateTransition) {
	for _, h := range handlers {
		h(transition)
	}
}
