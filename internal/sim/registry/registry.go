// Package registry is the spatial lookup service shared by all agents: the
// level's holes, the floor elevations and the set of registered agents.
//
// It is populated once at level start and read every tick. Reads are safe only
// under the world's single-threaded tick; there is no internal locking.
package registry

import (
	"fmt"
	"math"

	"holechase.ai/internal/sim/geom"
)

// Hole is an opening cut into floor Floor. Falling through it lands on
// Floor-1; standing under it on Floor-1 is where a boost up to Floor happens.
type Hole struct {
	ID    string    `json:"id"`
	Pos   geom.Vec3 `json:"pos"`
	Floor int       `json:"floor"`
}

// Member is the read-only view one agent has of another.
type Member interface {
	ID() string
	Floor() int
	Position() geom.Vec3
	// NearHole returns the member's nearest downward hole when it is within
	// the member's hole detection range.
	NearHole() (Hole, bool)
}

type Entry struct {
	Member Member
	Type   string
}

type Registry struct {
	holes      []Hole
	holeByID   map[string]int
	agents     []Entry
	agentByID  map[string]int
	elevations map[int]float64
}

func New(elevations map[int]float64) *Registry {
	el := make(map[int]float64, len(elevations))
	for k, v := range elevations {
		el[k] = v
	}
	return &Registry{
		holeByID:   map[string]int{},
		agentByID:  map[string]int{},
		elevations: el,
	}
}

func (r *Registry) AddHole(h Hole) error {
	if h.ID == "" {
		return fmt.Errorf("hole: empty id")
	}
	if _, ok := r.holeByID[h.ID]; ok {
		return fmt.Errorf("hole %s: duplicate id", h.ID)
	}
	r.holeByID[h.ID] = len(r.holes)
	r.holes = append(r.holes, h)
	return nil
}

// AllHoles returns the registry's hole list. Callers must not modify it.
func (r *Registry) AllHoles() []Hole { return r.holes }

func (r *Registry) Hole(id string) (Hole, bool) {
	i, ok := r.holeByID[id]
	if !ok {
		return Hole{}, false
	}
	return r.holes[i], true
}

// RegisterAgent adds m under its id with the given behavior type.
func (r *Registry) RegisterAgent(m Member, typ string) error {
	if m == nil || m.ID() == "" {
		return fmt.Errorf("agent: empty id")
	}
	if _, ok := r.agentByID[m.ID()]; ok {
		return fmt.Errorf("agent %s: duplicate id", m.ID())
	}
	r.agentByID[m.ID()] = len(r.agents)
	r.agents = append(r.agents, Entry{Member: m, Type: typ})
	return nil
}

// AllAgents returns agents in registration order. Callers must not modify it.
func (r *Registry) AllAgents() []Entry { return r.agents }

func (r *Registry) Lookup(id string) (Member, bool) {
	i, ok := r.agentByID[id]
	if !ok {
		return nil, false
	}
	return r.agents[i].Member, true
}

// Elevation returns the world Y of the given floor.
func (r *Registry) Elevation(floor int) (float64, bool) {
	y, ok := r.elevations[floor]
	return y, ok
}

// NearestHole returns the hole cut into floor closest to pos on the floor plane.
func (r *Registry) NearestHole(pos geom.Vec3, floor int) (Hole, float64, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for i, h := range r.holes {
		if h.Floor != floor {
			continue
		}
		if d := geom.FlatDist(pos, h.Pos); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Hole{}, 0, false
	}
	return r.holes[best], bestDist, true
}
