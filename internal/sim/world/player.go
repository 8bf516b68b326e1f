package world

import (
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/level"
)

// Player walks a scripted route so the tower can run without a human. The
// agents only see it through enemy.Quarry.
type Player struct {
	id    string
	pos   geom.Vec3
	floor int

	route    []level.Waypoint
	next     int
	waitLeft int
	done     bool

	speed float64
	loop  bool
	elev  map[int]float64
}

func newPlayer(spec level.Player, elev map[int]float64, speed float64) *Player {
	if spec.ID == "" {
		spec.ID = "player"
	}
	p := &Player{
		id:    spec.ID,
		route: append([]level.Waypoint(nil), spec.Route...),
		speed: speed,
		loop:  spec.Loop,
		elev:  elev,
	}
	if len(p.route) == 0 {
		p.done = true
		return p
	}
	start := p.route[0]
	p.floor = start.Floor
	p.pos = geom.V(start.X, elev[start.Floor], start.Z)
	p.waitLeft = start.Wait
	p.advanceWaypoint()
	return p
}

func (p *Player) ID() string          { return p.id }
func (p *Player) Position() geom.Vec3 { return p.pos }
func (p *Player) Floor() int          { return p.floor }
func (p *Player) Done() bool          { return p.done }

// step moves the player one tick along its route. Changing floors snaps the
// player to the new floor's elevation before it walks on.
func (p *Player) step() {
	if p.done {
		return
	}
	if p.waitLeft > 0 {
		p.waitLeft--
		return
	}
	wp := p.route[p.next]
	if wp.Floor != p.floor {
		p.floor = wp.Floor
		p.pos = p.pos.WithY(p.elev[wp.Floor])
	}
	goal := geom.V(wp.X, p.pos.Y, wp.Z)
	delta := goal.Sub(p.pos)
	dist := delta.Len()
	if dist <= p.speed || p.speed <= 0 {
		p.pos = goal
		p.waitLeft = wp.Wait
		p.advanceWaypoint()
		return
	}
	p.pos = p.pos.Add(delta.Scale(p.speed / dist))
}

func (p *Player) advanceWaypoint() {
	p.next++
	if p.next < len(p.route) {
		return
	}
	if p.loop && len(p.route) > 1 {
		p.next = 0
		return
	}
	p.done = true
}

func (p *Player) export() snapshot.PlayerV1 {
	return snapshot.PlayerV1{
		ID:       p.id,
		Pos:      p.pos,
		Floor:    p.floor,
		Next:     p.next,
		WaitLeft: p.waitLeft,
		Done:     p.done,
	}
}

func (p *Player) restore(s snapshot.PlayerV1) {
	p.pos = s.Pos
	p.floor = s.Floor
	p.next = s.Next
	p.waitLeft = s.WaitLeft
	p.done = s.Done
	if p.next < 0 || p.next >= len(p.route) {
		p.next = 0
		p.done = p.done || len(p.route) == 0
	}
}
