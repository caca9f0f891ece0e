package pipeline

import "fmt"

// turnState tracks how far a turn has progressed. Transitions only move
// forward; there is no rollback, a failed turn keeps everything persisted so
// far.
type turnState int

const (
	stateReceived turnState = iota
	statePersistingUser
	stateGenerating
	statePersistingAssistant
	stateNaming
	stateSynthesizing
	stateDone
)

var stateNames = map[turnState]string{
	stateReceived:            "received",
	statePersistingUser:      "persisting_user",
	stateGenerating:          "generating",
	statePersistingAssistant: "persisting_assistant",
	stateNaming:              "naming",
	stateSynthesizing:        "synthesizing",
	stateDone:                "done",
}

func (s turnState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("turnState(%d)", int(s))
}

// allowedTransitions encodes the forward-only turn lifecycle. Generation may
// finish the turn directly on an empty reply, and naming is skipped for
// follow-up exchanges.
var allowedTransitions = map[turnState][]turnState{
	stateReceived:            {statePersistingUser},
	statePersistingUser:      {stateGenerating},
	stateGenerating:          {statePersistingAssistant, stateDone},
	statePersistingAssistant: {stateNaming, stateSynthesizing},
	stateNaming:              {stateSynthesizing},
	stateSynthesizing:        {stateDone},
}

// turnTracker guards the lifecycle so that phases cannot run out of order.
type turnTracker struct {
	state turnState
}

func (t *turnTracker) to(next turnState) error {
	for _, candidate := range allowedTransitions[t.state] {
		if candidate == next {
			t.state = next
			return nil
		}
	}
	return fmt.Errorf("pipeline: invalid turn transition %s -> %s", t.state, next)
}
