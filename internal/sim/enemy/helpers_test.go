package enemy

import (
	"testing"

	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

type fakeLoco struct {
	pos     geom.Vec3
	heading geom.Vec3
	dest    geom.Vec3
	hasDest bool
	warps   []geom.Vec3
}

func (l *fakeLoco) MoveToward(p geom.Vec3) { l.dest, l.hasDest = p, true }
func (l *fakeLoco) WarpTo(p geom.Vec3) {
	l.pos = p
	l.warps = append(l.warps, p)
	l.hasDest = false
}
func (l *fakeLoco) AtDestination() bool { return !l.hasDest || geom.Near(l.pos, l.dest, 0.5) }
func (l *fakeLoco) Position() geom.Vec3 { return l.pos }
func (l *fakeLoco) Heading() geom.Vec3  { return l.heading }
func (l *fakeLoco) Rotate(deg float64)  { l.heading = geom.RotateY(l.heading, deg) }

type fakeSenses struct {
	wall         bool
	intersection bool
	stalled      bool
	draws        []float64
}

func (s *fakeSenses) WallAhead(float64) bool          { return s.wall }
func (s *fakeSenses) Distance(a, b geom.Vec3) float64 { return geom.Dist(a, b) }
func (s *fakeSenses) AtIntersection() bool            { return s.intersection }
func (s *fakeSenses) Stalled() bool                   { return s.stalled }
func (s *fakeSenses) Random() float64 {
	if len(s.draws) == 0 {
		return 0.99
	}
	v := s.draws[0]
	s.draws = s.draws[1:]
	return v
}

type recorder struct {
	transitions []Transition
	catches     []Catch
}

func (r *recorder) Transition(t Transition) { r.transitions = append(r.transitions, t) }
func (r *recorder) Caught(c Catch)          { r.catches = append(r.catches, c) }

type quarry struct {
	pos   geom.Vec3
	floor int
}

func (q *quarry) ID() string          { return "P" }
func (q *quarry) Position() geom.Vec3 { return q.pos }
func (q *quarry) Floor() int          { return q.floor }

type rig struct {
	reg *registry.Registry
	bus *bus.Bus
	obs *recorder
}

func newRig(t *testing.T, holes ...registry.Hole) *rig {
	t.Helper()
	reg := registry.New(map[int]float64{1: -200, 2: -100, 3: 0, 4: 100, 5: 200})
	for _, h := range holes {
		if err := reg.AddHole(h); err != nil {
			t.Fatalf("add hole: %v", err)
		}
	}
	return &rig{reg: reg, bus: bus.New(), obs: &recorder{}}
}

type unit struct {
	*Agent
	loco   *fakeLoco
	senses *fakeSenses
}

func testProfile() Profile {
	return Profile{
		Name:                    "hunter",
		PlayerDetectionRange:    50,
		PushRange:               25,
		HoleDetectionRange:      100,
		CommunicationRange:      25,
		CatchThreshold:          2,
		ArrivalTolerance:        1,
		PushProbability:         0.5,
		PushCooldownTicks:       15,
		PushRetryTicks:          5,
		TurnIntervalTicks:       5,
		WillingnessMin:          0.3,
		WillingnessMax:          0.5,
		RejectionMemory:         4,
		NegotiationTimeoutTicks: 50,
	}
}

func (r *rig) spawn(t *testing.T, id string, floor int, pos geom.Vec3) *unit {
	t.Helper()
	loco := &fakeLoco{pos: pos, heading: geom.Forward}
	senses := &fakeSenses{}
	a, err := New(Config{ID: id, Floor: floor, Profile: testProfile()}, Deps{
		Directory: r.reg,
		Bus:       r.bus,
		Loco:      loco,
		Senses:    senses,
		Observer:  r.obs,
	})
	if err != nil {
		t.Fatalf("new agent %s: %v", id, err)
	}
	if err := r.reg.RegisterAgent(a, a.Type()); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	a.Activate()
	return &unit{Agent: a, loco: loco, senses: senses}
}

// tick runs one world tick for the given agents in order.
func (r *rig) tick(n uint64, player Quarry, units ...*unit) {
	r.bus.SetTick(n)
	ctx := &TickContext{Tick: n, Player: player}
	for _, u := range units {
		u.Tick(ctx)
	}
}
