package enemy

import (
	"errors"
	"strings"
	"testing"

	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

func TestRoaming_DetectsPlayerOnSameFloor(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	p := &quarry{pos: geom.V(10, 0, 0), floor: 3}

	r.tick(1, p, x)

	if x.State() != Chasing {
		t.Fatalf("state = %s, want CHASING", x.State())
	}
	if x.TargetID() != "P" {
		t.Fatalf("target = %q, want player", x.TargetID())
	}
}

func TestRoaming_IgnoresPlayerOnOtherFloor(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	p := &quarry{pos: geom.V(10, 100, 0), floor: 4}

	r.tick(1, p, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if !x.loco.hasDest {
		t.Fatalf("roaming agent should keep walking along its heading")
	}
}

func TestBoosting_BoostSuccessReturnsToRoaming(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: Boosting, Boost: StatusBoosting, AllyBoost: StatusBeingBoosted, TargetID: "Y", WaitSince: 1})

	r.bus.SetTick(5)
	r.bus.Publish("Y", "X", bus.BoostSuccessAck{})

	r.tick(6, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if x.BoostStatus() != StatusUndefined || x.AllyBoostStatus() != StatusUndefined {
		t.Fatalf("boost statuses = %s/%s, want UNDEFINED", x.BoostStatus(), x.AllyBoostStatus())
	}
}

func TestSearchingAlly_SkipsRecentRejections(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.spawn(t, "Y", 3, geom.V(5, 0, 0))
	r.spawn(t, "Z", 3, geom.V(40, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: SearchingAlly, Rejections: []string{"Y"}})

	r.tick(1, nil, x)

	if x.State() != ChasingAlly {
		t.Fatalf("state = %s, want CHASING_ALLY", x.State())
	}
	if x.TargetID() != "Z" {
		t.Fatalf("target = %q, want Z (Y was rejected)", x.TargetID())
	}
}

func TestSearchingAlly_NoneFoundClearsUpwardHole(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.spawn(t, "Y", 2, geom.V(5, -100, 0))
	x.Restore(Snapshot{Floor: 3, State: SearchingAlly, UpHoleID: "U"})

	r.tick(1, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if _, ok := x.NearestUpwardHole(); ok {
		t.Fatalf("upward hole should be cleared")
	}
}

func TestNegotiationEvents_VisibleOneTickLater(t *testing.T) {
	r := newRig(t)
	s := r.spawn(t, "S", 3, geom.V(100, 0, 0))
	rcv := r.spawn(t, "R", 3, geom.V(0, 0, 0))

	// R ticks after the sender within tick 10; the push must still wait.
	r.bus.SetTick(10)
	ctx := &TickContext{Tick: 10}
	s.Tick(ctx)
	r.bus.Publish("S", "R", bus.PushAck{})
	rcv.Tick(ctx)
	if rcv.State() == BeingPushed {
		t.Fatalf("push became visible in the tick it was published")
	}

	r.tick(11, nil, s, rcv)
	if rcv.State() != BeingPushed {
		t.Fatalf("state = %s at tick 11, want BEING_PUSHED", rcv.State())
	}
}

func TestCommsSelf_AllyBoostingRoundTrip(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	var got []bus.Message
	r.bus.Subscribe("Y", func(m bus.Message) {
		if m.Recipient == "Y" {
			got = append(got, m)
		}
	})
	x.Restore(Snapshot{Floor: 3, State: CommsWithAllySelfInitiated, TargetID: "Y", UpHoleID: "U", Rejections: []string{"Q"}})

	r.tick(1, nil, x)
	if x.BoostStatus() != StatusWaiting {
		t.Fatalf("boost = %s after initiating, want WAITING", x.BoostStatus())
	}
	if len(got) != 1 || got[0].Kind() != bus.KindCommsInitiate {
		t.Fatalf("expected one comms-initiate to Y, got %+v", got)
	}
	w := got[0].Payload.(bus.Willingness)
	if w.Value < 0.3 || w.Value >= 0.5 || w.HoleID != "U" {
		t.Fatalf("unexpected willingness payload: %+v", w)
	}

	r.bus.Publish("Y", "X", bus.StatusReply{Status: bus.Boosting})
	r.tick(2, nil, x)

	if x.State() != ReturnToHoleBeingBoosted {
		t.Fatalf("state = %s, want RETURN_TO_HOLE_BEING_BOOSTED", x.State())
	}
	if x.BoostStatus() != StatusBeingBoosted {
		t.Fatalf("boost = %s, want BEING_BOOSTED", x.BoostStatus())
	}
	if len(x.RecentRejections()) != 0 {
		t.Fatalf("rejections should be cleared on agreement")
	}
}

func TestCommsSelf_AllyBeingBoostedMakesUsBooster(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: CommsWithAllySelfInitiated, TargetID: "Y", UpHoleID: "U"})

	r.tick(1, nil, x)
	r.bus.Subscribe("Y", func(bus.Message) {})
	r.bus.Publish("Y", "X", bus.StatusReply{Status: bus.BeingBoosted})
	r.tick(2, nil, x)

	if x.State() != ReturnToHoleBoosting || x.BoostStatus() != StatusBoosting {
		t.Fatalf("state=%s boost=%s, want RETURN_TO_HOLE_BOOSTING/BOOSTING", x.State(), x.BoostStatus())
	}

	// Walk under the hole: the next tick arrives and waits as booster.
	x.loco.pos = geom.V(10, 0, 0)
	r.tick(3, nil, x)
	if x.State() != Boosting {
		t.Fatalf("state = %s, want BOOSTING", x.State())
	}
}

func TestCommsSelf_RejectionRemembersAlly(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: CommsWithAllySelfInitiated, TargetID: "Y", UpHoleID: "U"})

	r.tick(1, nil, x)
	r.bus.Publish("Y", "X", bus.StatusReply{Status: bus.Rejection})
	r.tick(2, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if x.BoostStatus() != StatusUndefined {
		t.Fatalf("boost = %s after leaving negotiation, want UNDEFINED", x.BoostStatus())
	}
	if rej := x.RecentRejections(); len(rej) != 1 || rej[0] != "Y" {
		t.Fatalf("rejections = %v, want [Y]", rej)
	}
}

func TestCommsSelf_TimeoutTakesRejectionPath(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: CommsWithAllySelfInitiated, TargetID: "Y", UpHoleID: "U"})

	r.tick(1, nil, x)
	for n := uint64(2); n < 51; n++ {
		r.tick(n, nil, x)
		if x.State() != CommsWithAllySelfInitiated {
			t.Fatalf("left negotiation early at tick %d: %s", n, x.State())
		}
	}
	r.tick(51, nil, x)
	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING after timeout", x.State())
	}
	last := r.obs.transitions[len(r.obs.transitions)-1]
	if last.Reason != ReasonNegotiationTimeout {
		t.Fatalf("reason = %q, want %q", last.Reason, ReasonNegotiationTimeout)
	}
	if rej := x.RecentRejections(); len(rej) != 1 || rej[0] != "Y" {
		t.Fatalf("rejections = %v, want [Y]", rej)
	}
}

func TestResponder_AcceptsAndResponds(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	y := r.spawn(t, "Y", 3, geom.V(0, 0, 0))
	var replies []bus.StatusReply
	r.bus.Subscribe("X", func(m bus.Message) {
		if m.Recipient == "X" {
			if p, ok := m.Payload.(bus.StatusReply); ok {
				replies = append(replies, p)
			}
		}
	})

	r.bus.SetTick(1)
	r.bus.Publish("X", "Y", bus.Willingness{Value: 0.7, HoleID: "U"})

	r.tick(2, nil, y)
	if y.State() != CommsWithAllyOtherInitiated || y.TargetID() != "X" {
		t.Fatalf("state=%s target=%q, want COMMS_OTHER_INITIATED/X", y.State(), y.TargetID())
	}
	if h, ok := y.NearestUpwardHole(); !ok || h.ID != "U" {
		t.Fatalf("responder should adopt the initiator's hole")
	}

	// willingness draw 0.0 -> 0.3; r1 = 0.9 fails; r2 = 0.1 < 0.7 -> BeingBoosted.
	y.senses.draws = []float64{0.0, 0.9, 0.1}
	r.tick(3, nil, y)

	if len(replies) != 1 || replies[0].Status != bus.BeingBoosted {
		t.Fatalf("replies = %+v, want one BEING_BOOSTED", replies)
	}
	if y.State() != ReturnToHoleBeingBoosted || y.BoostStatus() != StatusBeingBoosted {
		t.Fatalf("state=%s boost=%s", y.State(), y.BoostStatus())
	}
}

func TestResponder_RejectsWithoutUpwardHole(t *testing.T) {
	r := newRig(t)
	y := r.spawn(t, "Y", 3, geom.V(0, 0, 0))
	r.bus.SetTick(1)
	r.bus.Publish("X", "Y", bus.Willingness{Value: 0.9})

	r.tick(2, nil, y)
	y.senses.draws = []float64{0.0, 0.0}
	r.tick(3, nil, y)

	if y.State() != Roaming || y.BoostStatus() != StatusUndefined {
		t.Fatalf("state=%s boost=%s, want ROAMING/UNDEFINED", y.State(), y.BoostStatus())
	}
}

func TestDecideResponse(t *testing.T) {
	draws := func(vs ...float64) func() float64 {
		return func() float64 {
			v := vs[0]
			vs = vs[1:]
			return v
		}
	}
	if got := DecideResponse(0.6, 0.1, draws(0.5, 0.9)); got != StatusBoosting {
		t.Fatalf("got %s, want BOOSTING", got)
	}
	if got := DecideResponse(0.1, 0.9, draws(0.5, 0.2)); got != StatusBeingBoosted {
		t.Fatalf("got %s, want BEING_BOOSTED", got)
	}
	if got := DecideResponse(0.1, 0.1, draws(0.5, 0.5)); got != StatusRejection {
		t.Fatalf("got %s, want REJECTION", got)
	}
}

func TestDecideResponse_ZeroWillingnessAlwaysRejects(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 0.999} {
		draw := func() float64 { return v }
		for i := 0; i < 2; i++ {
			if got := DecideResponse(0, 0, draw); got != StatusRejection {
				t.Fatalf("draw %v call %d: got %s, want REJECTION", v, i, got)
			}
		}
	}
}

func TestJumpingDown_DescendsExactlyOneFloor(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "D", Pos: geom.V(3, 0, 0), Floor: 3})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: JumpingDown})

	r.tick(1, nil, x)
	if x.State() != JumpingDown || x.Floor() != 3 {
		t.Fatalf("should still be walking to the hole: %s floor=%d", x.State(), x.Floor())
	}
	x.loco.pos = geom.V(3.4, 0, 0)
	r.tick(2, nil, x)

	if x.State() != Roaming || x.Floor() != 2 {
		t.Fatalf("state=%s floor=%d, want ROAMING floor 2", x.State(), x.Floor())
	}
	if got := x.Position(); got.Y != -100 || got.X != 3 {
		t.Fatalf("position = %+v, want snapped to hole at floor 2 elevation", got)
	}
}

func TestBeingBoosted_ClimbsAndAcknowledges(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(0, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	var acks int
	r.bus.Subscribe("Y", func(m bus.Message) {
		if m.Recipient == "Y" && m.Kind() == bus.KindBoostSuccess {
			acks++
		}
	})
	x.Restore(Snapshot{Floor: 3, State: BeingBoosted, Boost: StatusBeingBoosted, TargetID: "Y", UpHoleID: "U"})

	r.tick(1, nil, x)

	if x.State() != Roaming || x.Floor() != 4 {
		t.Fatalf("state=%s floor=%d, want ROAMING floor 4", x.State(), x.Floor())
	}
	if x.Position().Y != 100 {
		t.Fatalf("elevation = %v, want 100", x.Position().Y)
	}
	if acks != 1 {
		t.Fatalf("boost-success sent %d times, want 1", acks)
	}
	if x.BoostStatus() != StatusUndefined {
		t.Fatalf("boost = %s, want UNDEFINED", x.BoostStatus())
	}
}

func TestPush_EligibilityAndDelivery(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "D", Pos: geom.V(0, 0, 20), Floor: 3})
	pusher := r.spawn(t, "A", 3, geom.V(0, 0, 0))
	ally := r.spawn(t, "B", 3, geom.V(0.2, 0, 10))

	// B perceives its hole first, then A scans.
	r.tick(1, nil, ally, pusher)
	if pusher.State() != AbleToPush {
		t.Fatalf("pusher state = %s, want ABLE_TO_PUSH", pusher.State())
	}

	pusher.senses.draws = []float64{0.1}
	r.tick(2, nil, ally, pusher)
	if pusher.State() != Pushing || pusher.TargetID() != "B" {
		t.Fatalf("pusher state=%s target=%q, want PUSHING/B", pusher.State(), pusher.TargetID())
	}

	r.tick(3, nil, ally, pusher)
	r.tick(4, nil, ally, pusher)
	if ally.State() != BeingPushed {
		t.Fatalf("ally state = %s, want BEING_PUSHED", ally.State())
	}

	ally.loco.pos = geom.V(0, 0, 19.5)
	r.tick(5, nil, ally)
	if ally.Floor() != 2 || ally.State() != Roaming {
		t.Fatalf("ally floor=%d state=%s, want 2/ROAMING", ally.Floor(), ally.State())
	}
}

func TestAbleToPush_FailedDrawBacksOff(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "D", Pos: geom.V(0, 0, 20), Floor: 3})
	pusher := r.spawn(t, "A", 3, geom.V(0, 0, 0))
	ally := r.spawn(t, "B", 3, geom.V(0, 0, 10))

	r.tick(1, nil, ally, pusher)
	pusher.senses.draws = []float64{0.9}
	r.tick(2, nil, ally, pusher)
	if pusher.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING after failed draw", pusher.State())
	}
	// No rescan until the retry window (5 ticks) passes.
	for n := uint64(3); n < 7; n++ {
		r.tick(n, nil, ally, pusher)
		if pusher.State() != Roaming {
			t.Fatalf("tick %d: state = %s, want ROAMING during back-off", n, pusher.State())
		}
	}
	r.tick(7, nil, ally, pusher)
	if pusher.State() != AbleToPush {
		t.Fatalf("state = %s, want ABLE_TO_PUSH after back-off", pusher.State())
	}
}

func TestChasing_CatchFiresOnce(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	p := &quarry{pos: geom.V(10, 0, 0), floor: 3}

	r.tick(1, p, x)
	p.pos = geom.V(1, 0, 0)
	r.tick(2, p, x)
	r.tick(3, p, x)
	if len(r.obs.catches) != 1 {
		t.Fatalf("catches = %d, want 1", len(r.obs.catches))
	}
	p.pos = geom.V(10, 0, 0)
	r.tick(4, p, x)
	p.pos = geom.V(1, 0, 0)
	r.tick(5, p, x)
	if len(r.obs.catches) != 2 {
		t.Fatalf("catches = %d, want 2 after a second approach", len(r.obs.catches))
	}
}

func TestChasing_PlayerAboveStartsAllySearch(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(20, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	p := &quarry{pos: geom.V(10, 0, 0), floor: 3}
	r.tick(1, p, x)

	p.pos = geom.V(10, 40, 0)
	p.floor = 4
	r.tick(2, p, x)
	if x.State() != SearchingAlly {
		t.Fatalf("state = %s, want SEARCHING_ALLY", x.State())
	}
	if h, ok := x.NearestUpwardHole(); !ok || h.ID != "U" {
		t.Fatalf("upward hole not recorded")
	}
}

func TestChasing_PlayerLostWithWallTurns(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	p := &quarry{pos: geom.V(10, 0, 0), floor: 3}
	r.tick(1, p, x)

	p.pos = geom.V(500, 0, 0)
	x.senses.wall = true
	r.tick(2, p, x)
	if x.State() != Turning {
		t.Fatalf("state = %s, want TURNING", x.State())
	}
}

func TestChasing_MissingTargetFallsBack(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: Chasing, TargetID: "P"})

	r.tick(1, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	last := r.obs.transitions[len(r.obs.transitions)-1]
	if !strings.HasPrefix(last.Reason, ErrMissingReference.Error()) {
		t.Fatalf("reason = %q, want missing reference", last.Reason)
	}
}

func TestInvalidState_SelfHeals(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.state = State(99)
	x.boost = StatusWaiting

	r.tick(1, nil, x)

	if x.State() != Roaming || x.BoostStatus() != StatusUndefined {
		t.Fatalf("state=%s boost=%s, want ROAMING/UNDEFINED", x.State(), x.BoostStatus())
	}
	last := r.obs.transitions[len(r.obs.transitions)-1]
	if last.Reason != ErrInvalidState.Error() {
		t.Fatalf("reason = %q", last.Reason)
	}
}

func TestTurning_RotatesAwayFromWall(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.senses.intersection = true
	x.senses.wall = true
	x.senses.draws = []float64{0.1}

	r.tick(1, nil, x)
	if x.State() != Turning {
		t.Fatalf("state = %s, want TURNING", x.State())
	}
	// 0.2 -> -90, wall ahead -> +180: net +90 (facing +X).
	x.senses.draws = []float64{0.2}
	r.tick(2, nil, x)
	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if h := x.Heading(); h.X < 0.99 {
		t.Fatalf("heading = %+v, want +X", h)
	}
}

func TestDeactivate_DropsMessages(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Deactivate()
	if r.bus.Publish("S", "X", bus.PushAck{}) {
		t.Fatalf("inactive agent should not be reachable")
	}
	x.Activate()
	r.tick(1, nil, x)
	if x.State() != Roaming {
		t.Fatalf("state = %s", x.State())
	}
}

func TestSnapshot_RoundTripKeepsInbox(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.bus.SetTick(4)
	r.bus.Publish("S", "X", bus.PushAck{})
	snap := x.Export()
	if len(snap.Inbox) != 1 || snap.Inbox[0].Kind != bus.KindPush {
		t.Fatalf("inbox not exported: %+v", snap.Inbox)
	}

	r2 := newRig(t)
	y := r2.spawn(t, "X", 3, geom.V(0, 0, 0))
	y.Restore(snap)
	r2.tick(5, nil, y)
	if y.State() != BeingPushed {
		t.Fatalf("restored agent state = %s, want BEING_PUSHED", y.State())
	}
}

func TestParseState(t *testing.T) {
	for s := Roaming; s < numStates; s++ {
		got, err := ParseState(s.String())
		if err != nil || got != s {
			t.Fatalf("parse %s: %v %v", s, got, err)
		}
	}
	if _, err := ParseState("FLYING"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestBeingPushed_NoDownwardHoleRoams(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: BeingPushed})

	r.tick(1, nil, x)

	if x.State() != Roaming || x.Floor() != 3 {
		t.Fatalf("state=%s floor=%d, want ROAMING on 3", x.State(), x.Floor())
	}
	if last := r.obs.transitions[len(r.obs.transitions)-1]; last.Reason != "" {
		t.Fatalf("no hole is not a recovery: reason %q", last.Reason)
	}
}

func TestChasingAlly_PushInterrupts(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.spawn(t, "Y", 3, geom.V(60, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: ChasingAlly, TargetID: "Y", UpHoleID: "U"})

	r.bus.SetTick(5)
	r.bus.Publish("Z", "X", bus.PushAck{})
	r.tick(6, nil, x)

	if x.State() != BeingPushed {
		t.Fatalf("state = %s, want BEING_PUSHED", x.State())
	}
	if x.TargetID() != "" {
		t.Fatalf("target = %q, want cleared", x.TargetID())
	}
	if _, ok := x.NearestUpwardHole(); ok {
		t.Fatalf("upward hole should be dropped when pushed")
	}
}

func TestPushing_ArrivalReturnsToRoaming(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.spawn(t, "Y", 3, geom.V(3, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: Pushing, TargetID: "Y"})

	r.tick(1, nil, x)
	if x.State() != Pushing || !x.Export().PushIssued {
		t.Fatalf("state=%s issued=%v, want PUSHING with push issued", x.State(), x.Export().PushIssued)
	}

	x.loco.pos = geom.V(3, 0, 0)
	r.tick(2, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if s := x.Export(); s.PushIssued || s.TargetID != "" {
		t.Fatalf("push not cleared: issued=%v target=%q", s.PushIssued, s.TargetID)
	}
}

func TestTurning_CrowdRevertsTurn(t *testing.T) {
	r := newRig(t)
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	r.spawn(t, "Y", 3, geom.V(5, 0, 0))
	r.spawn(t, "Z", 3, geom.V(-8, 0, 0))
	x.prof.CrowdLimit = 1
	x.Restore(Snapshot{Floor: 3, State: Turning})

	// 0.9 -> +90, no wall, two allies within push range -> turn undone.
	x.senses.draws = []float64{0.9}
	r.tick(1, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING", x.State())
	}
	if h := x.Heading(); !geom.Near(h, geom.Forward, 1e-6) {
		t.Fatalf("heading = %+v, want original forward", h)
	}

	// Room for both allies: the turn sticks.
	x.prof.CrowdLimit = 2
	x.Restore(Snapshot{Floor: 3, State: Turning})
	x.senses.draws = []float64{0.9}
	r.tick(2, nil, x)
	if h := x.Heading(); h.X < 0.99 {
		t.Fatalf("heading = %+v, want +X", h)
	}
}

func TestRoaming_DropsStaleCommsInitiate(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))

	r.bus.SetTick(1)
	r.bus.Publish("Y", "X", bus.Willingness{Value: 0.6, HoleID: "U"})

	// Timeout is 50 ticks; by tick 60 the initiator has given up.
	r.tick(60, nil, x)

	if x.State() != Roaming || x.TargetID() != "" {
		t.Fatalf("state=%s target=%q, want ROAMING without target", x.State(), x.TargetID())
	}
	if x.Export().ReceivedComms {
		t.Fatalf("stale comms flag should be consumed")
	}
}

func TestBoosting_TimeoutRecovers(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	x := r.spawn(t, "X", 3, geom.V(10, 0, 0))
	x.Restore(Snapshot{Floor: 3, State: Boosting, Boost: StatusBoosting, AllyBoost: StatusBeingBoosted, TargetID: "Y", UpHoleID: "U", WaitSince: 1})

	r.tick(50, nil, x)
	if x.State() != Boosting {
		t.Fatalf("state = %s, want BOOSTING before the deadline", x.State())
	}
	r.tick(51, nil, x)

	if x.State() != Roaming {
		t.Fatalf("state = %s, want ROAMING after timeout", x.State())
	}
	last := r.obs.transitions[len(r.obs.transitions)-1]
	if last.From != Boosting || last.Reason != ReasonNegotiationTimeout {
		t.Fatalf("transition = %+v", last)
	}
	if x.BoostStatus() != StatusUndefined || x.AllyBoostStatus() != StatusUndefined || x.TargetID() != "" {
		t.Fatalf("boost=%s ally=%s target=%q", x.BoostStatus(), x.AllyBoostStatus(), x.TargetID())
	}
	if _, ok := x.NearestUpwardHole(); ok {
		t.Fatalf("upward hole should be cleared")
	}
}

func TestResponder_AgreeingClearsRejections(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "U", Pos: geom.V(10, 100, 0), Floor: 4})
	y := r.spawn(t, "Y", 3, geom.V(0, 0, 0))
	y.Restore(Snapshot{
		Floor:           3,
		State:           CommsWithAllyOtherInitiated,
		TargetID:        "X",
		UpHoleID:        "U",
		AllyWillingness: 0.6,
		Rejections:      []string{"Z"},
	})

	// willingness 0.99 -> 0.498 beats 0.1 -> Boosting.
	y.senses.draws = []float64{0.99, 0.1}
	r.tick(1, nil, y)

	if y.State() != ReturnToHoleBoosting {
		t.Fatalf("state = %s, want RETURN_TO_HOLE_BOOSTING", y.State())
	}
	if rej := y.RecentRejections(); len(rej) != 0 {
		t.Fatalf("rejections = %v, want cleared", rej)
	}
}

func TestJumpingDown_StalledGivesUp(t *testing.T) {
	r := newRig(t, registry.Hole{ID: "D", Pos: geom.V(0, 0, 30), Floor: 3})
	x := r.spawn(t, "X", 3, geom.V(0, 0, 0))
	x.prof.StallLimitTicks = 3
	x.Restore(Snapshot{Floor: 3, State: JumpingDown})

	x.senses.stalled = true
	r.tick(1, nil, x)
	r.tick(2, nil, x)
	if x.State() != JumpingDown {
		t.Fatalf("state = %s, want JUMPING_DOWN before the stall limit", x.State())
	}
	// Progress resets the count.
	x.senses.stalled = false
	r.tick(3, nil, x)
	x.senses.stalled = true
	r.tick(4, nil, x)
	r.tick(5, nil, x)
	if x.State() != JumpingDown {
		t.Fatalf("state = %s, want JUMPING_DOWN after progress", x.State())
	}
	r.tick(6, nil, x)

	if x.State() != Roaming || x.Floor() != 3 {
		t.Fatalf("state=%s floor=%d, want ROAMING on 3", x.State(), x.Floor())
	}
	last := r.obs.transitions[len(r.obs.transitions)-1]
	if last.From != JumpingDown || last.Reason != ReasonPathBlocked {
		t.Fatalf("transition = %+v", last)
	}
	if x.Export().StallTicks != 0 {
		t.Fatalf("stall count should reset on leaving the state")
	}
}
