// Package locomotion moves agent bodies for the simulation. The FSM only
// issues goals; bodies advance once per tick after every agent has decided.
package locomotion

import (
	"holechase.ai/internal/sim/geom"
)

// Kinematic is a straight-line mover on the floor plane. It has no
// pathfinding; walls are the FSM's problem via its wall probe.
type Kinematic struct {
	pos       geom.Vec3
	heading   geom.Vec3
	dest      geom.Vec3
	hasDest   bool
	speed     float64
	tolerance float64

	// Blocked, when set, vetoes a step from one point to the next.
	Blocked func(from, to geom.Vec3) bool
}

func NewKinematic(pos, heading geom.Vec3, speed, tolerance float64) *Kinematic {
	h := heading.Flat().Normalize()
	if h == (geom.Vec3{}) {
		h = geom.Forward
	}
	if tolerance <= 0 {
		tolerance = 1
	}
	return &Kinematic{pos: pos, heading: h, speed: speed, tolerance: tolerance}
}

// MoveToward replaces the current goal. Only the floor-plane part of p is
// used; the body keeps its elevation.
func (k *Kinematic) MoveToward(p geom.Vec3) {
	k.dest = p.WithY(k.pos.Y)
	k.hasDest = true
}

// WarpTo teleports the body and drops any goal.
func (k *Kinematic) WarpTo(p geom.Vec3) {
	k.pos = p
	k.hasDest = false
}

func (k *Kinematic) AtDestination() bool {
	return !k.hasDest || geom.Near(k.pos, k.dest, k.tolerance)
}

func (k *Kinematic) Position() geom.Vec3 { return k.pos }
func (k *Kinematic) Heading() geom.Vec3  { return k.heading }

func (k *Kinematic) Rotate(deg float64) {
	k.heading = geom.RotateY(k.heading, deg).Normalize()
}

// Advance moves at most one tick's worth of distance toward the goal and
// turns the heading to face the direction of travel. It reports whether the
// body moved.
func (k *Kinematic) Advance() bool {
	if !k.hasDest || k.speed <= 0 {
		return false
	}
	delta := k.dest.Sub(k.pos).Flat()
	dist := delta.Len()
	if dist == 0 {
		return false
	}
	dir := delta.Scale(1 / dist)
	step := k.speed
	if step > dist {
		step = dist
	}
	next := k.pos.Add(dir.Scale(step))
	if k.Blocked != nil && k.Blocked(k.pos, next) {
		return false
	}
	k.pos = next
	k.heading = dir
	return true
}

// State is the body's serializable form.
type State struct {
	Pos     geom.Vec3
	Heading geom.Vec3
	Dest    geom.Vec3
	HasDest bool
}

func (k *Kinematic) Export() State {
	return State{Pos: k.pos, Heading: k.heading, Dest: k.dest, HasDest: k.hasDest}
}

func (k *Kinematic) Restore(s State) {
	k.pos = s.Pos
	k.heading = s.Heading
	if k.heading == (geom.Vec3{}) {
		k.heading = geom.Forward
	}
	k.dest = s.Dest
	k.hasDest = s.HasDest
}
