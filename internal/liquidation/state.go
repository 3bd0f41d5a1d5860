// Package liquidation previews and confirms purchase-contract liquidations:
// market prices are seeded, the settlement is derived by the pricing engine
// and status changes go through an explicit transition table.
package liquidation

import (
	"errors"
	"fmt"
)

// State is the liquidation status of a contract.
type State string

const (
	// StateActive is a running contract without a liquidation request.
	StateActive State = "active"
	// StatePending is a contract whose liquidation awaits backend approval.
	StatePending State = "pending_liquidation"
	// StateLiquidated is terminal.
	StateLiquidated State = "liquidated"
)

// Event is an operator action on a contract.
type Event string

const (
	// EventConfirm submits (or resubmits) liquidation prices.
	EventConfirm Event = "confirm"
	// EventRevert withdraws a pending liquidation.
	EventRevert Event = "revert"
)

// Action is the verb sent to the backend with a confirmation payload.
type Action string

const (
	ActionUpdate Action = "update"
	ActionRevert Action = "revert"
)

// ErrIllegalTransition is returned for events the current state does not accept.
var ErrIllegalTransition = errors.New("liquidation: illegal state transition")

// Transition is the outcome of applying an event.
type Transition struct {
	From   State  `json:"from"`
	Event  Event  `json:"event"`
	To     State  `json:"to"`
	Action Action `json:"action"`
}

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]Transition{
	{StateActive, EventConfirm}:  {From: StateActive, Event: EventConfirm, To: StatePending, Action: ActionUpdate},
	{StatePending, EventConfirm}: {From: StatePending, Event: EventConfirm, To: StatePending, Action: ActionUpdate},
	{StatePending, EventRevert}:  {From: StatePending, Event: EventRevert, To: StateActive, Action: ActionRevert},
}

// Next looks up the transition for ev in state from.
func Next(from State, ev Event) (Transition, error) {
	t, ok := transitions[transitionKey{from, ev}]
	if !ok {
		return Transition{}, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, from)
	}
	return t, nil
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateActive, StatePending, StateLiquidated:
		return true
	}
	return false
}
