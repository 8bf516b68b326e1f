package enemy

import (
	"errors"
	"math"

	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

// Tick advances the agent exactly once: inbox promotion, perception, then one
// transition. It never returns an error; missing references and unknown
// states fall back to Roaming and are reported on the transition stream.
func (a *Agent) Tick(ctx *TickContext) {
	if !a.active || ctx == nil {
		return
	}
	a.promoteInbox(ctx.Tick)
	a.perceive(ctx)

	from := a.state
	next, err := a.step(ctx)
	reason := ""
	if err != nil {
		next = Roaming
		reason = err.Error()
		a.targetID = ""
		a.pushIssued = false
		a.clearUpHole()
	}
	if next != Chasing {
		a.catching = false
	}
	if next != from {
		a.stallTicks = 0
	}
	a.state = next
	if !a.state.Negotiating() {
		a.boost = StatusUndefined
		a.allyBoost = StatusUndefined
	}
	if (from != next || reason != "") && a.obs != nil {
		a.obs.Transition(Transition{
			Tick:    ctx.Tick,
			AgentID: a.id,
			From:    from,
			To:      next,
			Floor:   a.floor,
			Reason:  reason,
		})
	}
}

func (a *Agent) perceive(ctx *TickContext) {
	pos := a.loco.Position()

	a.playerDist = math.Inf(1)
	if ctx.Player != nil {
		a.playerDist = a.senses.Distance(pos, ctx.Player.Position())
	}

	a.hasDownHole = false
	a.nearHole = false
	best := math.Inf(1)
	for _, h := range a.dir.AllHoles() {
		if h.Floor != a.floor {
			continue
		}
		if d := a.senses.Distance(pos, h.Pos); d < best {
			best = d
			a.downHole = h
			a.hasDownHole = true
		}
	}
	if a.hasDownHole && best < a.prof.HoleDetectionRange {
		a.nearHole = true
	}
}

func (a *Agent) step(ctx *TickContext) (State, error) {
	switch a.state {
	case Roaming:
		return a.stepRoaming(ctx)
	case Turning:
		return a.stepTurning(ctx)
	case AbleToPush:
		return a.stepAbleToPush(ctx)
	case Pushing:
		return a.stepPushing()
	case BeingPushed:
		return a.stepBeingPushed()
	case Chasing:
		return a.stepChasing(ctx)
	case JumpingDown:
		return a.stepJumpingDown()
	case SearchingAlly:
		return a.stepSearchingAlly()
	case ChasingAlly:
		return a.stepChasingAlly()
	case CommsWithAllySelfInitiated:
		return a.stepCommsSelf(ctx)
	case CommsWithAllyOtherInitiated:
		return a.stepCommsOther()
	case ReturnToHoleBoosting:
		return a.stepReturnToHole(ctx, Boosting)
	case ReturnToHoleBeingBoosted:
		return a.stepReturnToHole(ctx, BeingBoosted)
	case Boosting:
		return a.stepBoosting(ctx)
	case BeingBoosted:
		return a.stepBeingBoosted()
	default:
		return Roaming, ErrInvalidState
	}
}

func (a *Agent) stepRoaming(ctx *TickContext) (State, error) {
	pos := a.loco.Position()
	a.loco.MoveToward(pos.Add(a.loco.Heading().Flat().Normalize().Scale(a.prof.RoamLookahead)))

	if !a.canPush && ctx.Tick >= a.pushAt {
		a.scanPush(pos)
	}

	switch {
	case a.receivedPush:
		a.receivedPush = false
		return BeingPushed, nil
	case a.senses.AtIntersection() && (a.senses.Random() > intersectionTurnChance || a.senses.WallAhead(a.prof.WallProbeDistance)):
		return Turning, nil
	case ctx.Player != nil && a.playerDist < a.prof.PlayerDetectionRange && ctx.Player.Floor() == a.floor:
		a.targetID = ctx.Player.ID()
		return Chasing, nil
	case a.receivedComms:
		return a.acceptComms(ctx)
	case a.canPush:
		return AbleToPush, nil
	}
	return Roaming, nil
}

// scanPush looks for a same-floor ally within push range that stands between
// this agent and the ally's nearest hole.
func (a *Agent) scanPush(pos geom.Vec3) {
	for _, e := range a.dir.AllAgents() {
		m := e.Member
		if m == nil || m.ID() == a.id || m.Floor() != a.floor {
			continue
		}
		allyPos := m.Position()
		if a.senses.Distance(pos, allyPos) >= a.prof.PushRange {
			continue
		}
		hole, ok := m.NearHole()
		if !ok {
			continue
		}
		if geom.QuasiCollinear(pos, allyPos, hole.Pos, a.prof.CollinearToleranceDeg) {
			a.canPush = true
			a.pushTargetID = m.ID()
			return
		}
	}
}

func (a *Agent) stepTurning(ctx *TickContext) (State, error) {
	if ctx.Tick >= a.turnAt {
		deg := 90.0
		if a.senses.Random() < 0.5 {
			deg = -90
		}
		a.loco.Rotate(deg)
		if a.senses.WallAhead(a.prof.WallProbeDistance) {
			a.loco.Rotate(180)
		} else if a.prof.CrowdLimit > 0 && a.crowdCount() > a.prof.CrowdLimit {
			a.loco.Rotate(-deg)
		}
		a.turnAt = ctx.Tick + a.prof.TurnIntervalTicks
	}
	return Roaming, nil
}

func (a *Agent) crowdCount() int {
	pos := a.loco.Position()
	n := 0
	for _, e := range a.dir.AllAgents() {
		m := e.Member
		if m == nil || m.ID() == a.id || m.Floor() != a.floor {
			continue
		}
		if a.senses.Distance(pos, m.Position()) < a.prof.PushRange {
			n++
		}
	}
	return n
}

func (a *Agent) stepAbleToPush(ctx *TickContext) (State, error) {
	a.canPush = false
	if a.senses.Random() < a.prof.PushProbability && ctx.Tick >= a.pushAt {
		a.pushAt = ctx.Tick + a.prof.PushCooldownTicks
		a.targetID = a.pushTargetID
		a.pushTargetID = ""
		return Pushing, nil
	}
	a.pushAt = ctx.Tick + a.prof.PushRetryTicks
	a.pushTargetID = ""
	return Roaming, nil
}

func (a *Agent) stepPushing() (State, error) {
	if !a.pushIssued {
		m, ok := a.dir.Lookup(a.targetID)
		if !ok {
			return Roaming, missing("push_target")
		}
		a.loco.MoveToward(m.Position())
		a.bus.Publish(a.id, a.targetID, bus.PushAck{})
		a.pushIssued = true
		return Pushing, nil
	}
	if a.loco.AtDestination() {
		a.pushIssued = false
		a.targetID = ""
		return Roaming, nil
	}
	if a.pathBlocked() {
		return Roaming, errPathBlocked
	}
	return Pushing, nil
}

func (a *Agent) stepBeingPushed() (State, error) {
	if !a.hasDownHole {
		return Roaming, nil
	}
	if geom.Near(a.loco.Position(), a.downHole.Pos, a.prof.ArrivalTolerance) {
		if err := a.descend(a.downHole); err != nil {
			return Roaming, err
		}
		return Roaming, nil
	}
	if a.pathBlocked() {
		return Roaming, errPathBlocked
	}
	a.loco.MoveToward(a.downHole.Pos)
	return BeingPushed, nil
}

func (a *Agent) stepChasing(ctx *TickContext) (State, error) {
	p := ctx.Player
	if p == nil || p.ID() != a.targetID {
		return Roaming, missing("target")
	}
	a.loco.MoveToward(p.Position())

	inRange := a.playerDist < a.prof.PlayerDetectionRange
	switch {
	case inRange && p.Floor() == a.floor+1:
		h, ok := a.upwardHole()
		if !ok {
			return Roaming, missing("upward_hole")
		}
		a.setUpHole(h)
		a.targetID = ""
		return SearchingAlly, nil
	case inRange && p.Floor() == a.floor-1:
		a.targetID = ""
		return JumpingDown, nil
	case !inRange || p.Floor() != a.floor:
		a.targetID = ""
		if a.senses.WallAhead(a.prof.WallProbeDistance) {
			return Turning, nil
		}
		return Roaming, nil
	}

	if a.playerDist < a.prof.CatchThreshold {
		if !a.catching {
			a.catching = true
			if a.obs != nil {
				a.obs.Caught(Catch{
					Tick:     ctx.Tick,
					AgentID:  a.id,
					QuarryID: p.ID(),
					Floor:    a.floor,
					Distance: a.playerDist,
				})
			}
		}
	} else {
		a.catching = false
	}
	return Chasing, nil
}

func (a *Agent) stepJumpingDown() (State, error) {
	if !a.hasDownHole {
		return Roaming, missing("downward_hole")
	}
	if geom.Near(a.loco.Position(), a.downHole.Pos, a.prof.ArrivalTolerance) {
		if err := a.descend(a.downHole); err != nil {
			return Roaming, err
		}
		return Roaming, nil
	}
	if a.pathBlocked() {
		return Roaming, errPathBlocked
	}
	a.loco.MoveToward(a.downHole.Pos)
	return JumpingDown, nil
}

func (a *Agent) stepSearchingAlly() (State, error) {
	pos := a.loco.Position()
	best := ""
	bestDist := math.Inf(1)
	for _, e := range a.dir.AllAgents() {
		m := e.Member
		if m == nil || m.ID() == a.id || m.Floor() != a.floor || a.rejected(m.ID()) {
			continue
		}
		if d := a.senses.Distance(pos, m.Position()); d < bestDist {
			best, bestDist = m.ID(), d
		}
	}
	if best == "" {
		a.clearUpHole()
		return Roaming, nil
	}
	a.targetID = best
	return ChasingAlly, nil
}

func (a *Agent) stepChasingAlly() (State, error) {
	if a.receivedPush {
		a.receivedPush = false
		a.targetID = ""
		a.clearUpHole()
		return BeingPushed, nil
	}
	if !a.hasUpHole {
		return Roaming, missing("upward_hole")
	}
	m, ok := a.dir.Lookup(a.targetID)
	if !ok {
		return Roaming, missing("target")
	}
	if m.Floor() != a.floor {
		// The ally left the floor; look for another one.
		a.targetID = ""
		return SearchingAlly, nil
	}
	allyPos := m.Position()
	a.loco.MoveToward(allyPos)
	if a.senses.Distance(a.loco.Position(), allyPos) < a.prof.CommunicationRange {
		return CommsWithAllySelfInitiated, nil
	}
	return ChasingAlly, nil
}

func (a *Agent) stepReturnToHole(ctx *TickContext, arrive State) (State, error) {
	if !a.hasUpHole {
		return Roaming, missing("upward_hole")
	}
	pos := a.loco.Position()
	if geom.Near(pos, a.upHole.Pos, a.prof.ArrivalTolerance) {
		a.waitSince = ctx.Tick
		return arrive, nil
	}
	if a.pathBlocked() {
		return Roaming, errPathBlocked
	}
	a.loco.MoveToward(a.upHole.Pos.WithY(pos.Y))
	return a.state, nil
}

func (a *Agent) stepBoosting(ctx *TickContext) (State, error) {
	if a.receivedBoostSuccess {
		a.receivedBoostSuccess = false
		a.targetID = ""
		a.clearUpHole()
		return Roaming, nil
	}
	if a.timedOut(ctx.Tick) {
		a.targetID = ""
		a.clearUpHole()
		return Roaming, errors.New(ReasonNegotiationTimeout)
	}
	return Boosting, nil
}

func (a *Agent) stepBeingBoosted() (State, error) {
	y, ok := a.dir.Elevation(a.floor + 1)
	if !ok {
		return Roaming, missing("elevation")
	}
	a.floor++
	a.loco.WarpTo(a.loco.Position().WithY(y))
	if a.targetID != "" {
		a.bus.Publish(a.id, a.targetID, bus.BoostSuccessAck{})
	}
	a.targetID = ""
	a.clearUpHole()
	return Roaming, nil
}

// descend drops the agent one floor through h.
func (a *Agent) descend(h registry.Hole) error {
	y, ok := a.dir.Elevation(a.floor - 1)
	if !ok {
		return missing("elevation")
	}
	a.floor--
	a.loco.WarpTo(h.Pos.WithY(y))
	a.targetID = ""
	return nil
}

// upwardHole is the hole in the floor above closest to the agent.
func (a *Agent) upwardHole() (registry.Hole, bool) {
	h, _, ok := a.dir.NearestHole(a.loco.Position(), a.floor+1)
	return h, ok
}

// pathBlocked reports whether the body has been stuck for StallLimitTicks
// consecutive ticks of the current state.
func (a *Agent) pathBlocked() bool {
	if a.prof.StallLimitTicks == 0 {
		return false
	}
	if !a.senses.Stalled() {
		a.stallTicks = 0
		return false
	}
	a.stallTicks++
	return a.stallTicks >= a.prof.StallLimitTicks
}

func (a *Agent) timedOut(tick uint64) bool {
	t := a.prof.NegotiationTimeoutTicks
	return t > 0 && tick >= a.waitSince+t
}
