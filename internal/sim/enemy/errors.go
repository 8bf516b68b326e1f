package enemy

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReference means a state needed a target, hole or floor that is
	// not available. The agent falls back to Roaming.
	ErrMissingReference = errors.New("missing_reference")
	// ErrInvalidState means the agent held a state outside the known set.
	ErrInvalidState = errors.New("invalid_state")
)

// Recovery reasons recorded on transitions that fell back to Roaming.
const (
	ReasonNegotiationTimeout = "negotiation_timeout"
	ReasonPathBlocked        = "path_blocked"
)

var errPathBlocked = errors.New(ReasonPathBlocked)

func missing(what string) error { return fmt.Errorf("%w:%s", ErrMissingReference, what) }
