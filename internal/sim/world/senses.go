package world

import "holechase.ai/internal/sim/geom"

// senses answers one agent's perception queries against the level geometry.
type senses struct {
	w  *World
	ab *agentBody
}

// WallAhead casts the body's heading against the walls of its current floor.
func (s *senses) WallAhead(probe float64) bool {
	pos := s.ab.body.Position()
	dir := s.ab.body.Heading()
	for _, b := range s.w.walls[s.ab.fsm.Floor()] {
		if b.RayHits(pos, dir, probe) {
			return true
		}
	}
	return false
}

func (s *senses) Distance(a, b geom.Vec3) float64 { return geom.Dist(a, b) }

func (s *senses) Random() float64 { return s.ab.rng.Float64() }

func (s *senses) Stalled() bool { return s.ab.stalled }

// AtIntersection reports whether the body stands in an intersection zone. A
// body that ran into a wall counts as standing in one so it can turn away.
func (s *senses) AtIntersection() bool {
	if s.ab.stalled {
		return true
	}
	pos := s.ab.body.Position()
	for _, in := range s.w.intersections[s.ab.fsm.Floor()] {
		if in.Contains(pos) {
			return true
		}
	}
	return false
}
