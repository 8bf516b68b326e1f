package enemy

import (
	"fmt"

	"holechase.ai/internal/sim/bus"
)

type State uint8

const (
	Roaming State = iota
	Turning
	AbleToPush
	Pushing
	BeingPushed
	Chasing
	JumpingDown
	ChasingAlly
	SearchingAlly
	CommsWithAllySelfInitiated
	CommsWithAllyOtherInitiated
	Boosting
	BeingBoosted
	ReturnToHoleBoosting
	ReturnToHoleBeingBoosted

	numStates
)

var stateNames = [numStates]string{
	Roaming:                     "ROAMING",
	Turning:                     "TURNING",
	AbleToPush:                  "ABLE_TO_PUSH",
	Pushing:                     "PUSHING",
	BeingPushed:                 "BEING_PUSHED",
	Chasing:                     "CHASING",
	JumpingDown:                 "JUMPING_DOWN",
	ChasingAlly:                 "CHASING_ALLY",
	SearchingAlly:               "SEARCHING_ALLY",
	CommsWithAllySelfInitiated:  "COMMS_SELF_INITIATED",
	CommsWithAllyOtherInitiated: "COMMS_OTHER_INITIATED",
	Boosting:                    "BOOSTING",
	BeingBoosted:                "BEING_BOOSTED",
	ReturnToHoleBoosting:        "RETURN_TO_HOLE_BOOSTING",
	ReturnToHoleBeingBoosted:    "RETURN_TO_HOLE_BEING_BOOSTED",
}

func (s State) Valid() bool { return s < numStates }

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
	return stateNames[s]
}

func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, name)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Negotiating reports whether s is part of a boost negotiation. Outside these
// states an agent's boost status is always Undefined.
func (s State) Negotiating() bool {
	switch s {
	case CommsWithAllySelfInitiated, CommsWithAllyOtherInitiated,
		ReturnToHoleBoosting, ReturnToHoleBeingBoosted,
		Boosting, BeingBoosted:
		return true
	}
	return false
}

// BoostStatus is shared with the bus so replies carry it unchanged.
type BoostStatus = bus.BoostStatus

const (
	StatusUndefined    = bus.Undefined
	StatusWaiting      = bus.Waiting
	StatusBoosting     = bus.Boosting
	StatusBeingBoosted = bus.BeingBoosted
	StatusRejection    = bus.Rejection
)
