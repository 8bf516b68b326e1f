package enemy

import (
	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

// Locomotion moves the agent's body. The FSM issues intents; the adapter
// integrates them between ticks.
type Locomotion interface {
	MoveToward(p geom.Vec3)
	// WarpTo relocates instantly; used for floor transitions.
	WarpTo(p geom.Vec3)
	AtDestination() bool
	Position() geom.Vec3
	Heading() geom.Vec3
	// Rotate turns the heading around the up axis.
	Rotate(deg float64)
}

// Perception answers the agent's environment queries.
type Perception interface {
	WallAhead(probe float64) bool
	Distance(a, b geom.Vec3) float64
	// Random returns a uniform value in [0, 1).
	Random() float64
	AtIntersection() bool
	// Stalled reports whether the body's last step toward its goal was
	// refused, e.g. by a wall.
	Stalled() bool
}

// Quarry is the player as the agents see it.
type Quarry interface {
	ID() string
	Position() geom.Vec3
	Floor() int
}

// Directory is the spatial registry surface the FSM reads.
type Directory interface {
	AllHoles() []registry.Hole
	AllAgents() []registry.Entry
	Lookup(id string) (registry.Member, bool)
	Hole(id string) (registry.Hole, bool)
	NearestHole(pos geom.Vec3, floor int) (registry.Hole, float64, bool)
	Elevation(floor int) (float64, bool)
}

// Observer receives the transition stream and catch events. Optional.
type Observer interface {
	Transition(Transition)
	Caught(Catch)
}

type Deps struct {
	Directory Directory
	Bus       *bus.Bus
	Loco      Locomotion
	Senses    Perception
	Observer  Observer
}

// TickContext is what the world hands every agent once per tick.
type TickContext struct {
	Tick   uint64
	Player Quarry
}

type Transition struct {
	Tick    uint64 `json:"tick"`
	AgentID string `json:"agent_id"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Floor   int    `json:"floor"`
	Reason  string `json:"reason,omitempty"`
}

// Catch fires once each time an agent closes to within its catch threshold.
type Catch struct {
	Tick     uint64  `json:"tick"`
	AgentID  string  `json:"agent_id"`
	QuarryID string  `json:"quarry_id"`
	Floor    int     `json:"floor"`
	Distance float64 `json:"distance"`
}
