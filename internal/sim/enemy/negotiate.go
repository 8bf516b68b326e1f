package enemy

import (
	"errors"

	"holechase.ai/internal/sim/bus"
)

// DecideResponse picks the responder's role for a boost request. The
// responder boosts if its own willingness beats a fresh draw; otherwise it
// agrees to be boosted if the initiator's willingness beats a second draw;
// otherwise it rejects. Either party can end up as the booster.
func DecideResponse(own, initiator float64, draw func() float64) BoostStatus {
	if own > draw() {
		return StatusBoosting
	}
	if initiator > draw() {
		return StatusBeingBoosted
	}
	return StatusRejection
}

func (a *Agent) drawWillingness() float64 {
	lo, hi := a.prof.WillingnessMin, a.prof.WillingnessMax
	return lo + a.senses.Random()*(hi-lo)
}

// acceptComms consumes a pending comms-initiate flag while roaming.
func (a *Agent) acceptComms(ctx *TickContext) (State, error) {
	a.receivedComms = false
	if t := a.prof.NegotiationTimeoutTicks; t > 0 && ctx.Tick > a.commsTick+t {
		// The initiator has given up by now.
		return Roaming, nil
	}
	a.targetID = a.commsFrom
	a.clearUpHole()
	if h, ok := a.dir.Hole(a.commsHoleID); ok && h.Floor == a.floor+1 {
		a.setUpHole(h)
	} else if h, ok := a.upwardHole(); ok {
		a.setUpHole(h)
	}
	a.responded = false
	a.receivedBoostSuccess = false
	return CommsWithAllyOtherInitiated, nil
}

func (a *Agent) stepCommsSelf(ctx *TickContext) (State, error) {
	if a.boost == StatusUndefined {
		if !a.hasUpHole {
			return Roaming, missing("upward_hole")
		}
		w := a.drawWillingness()
		a.allyBoost = StatusUndefined
		a.receivedBoostSuccess = false
		a.bus.Publish(a.id, a.targetID, bus.Willingness{Value: w, HoleID: a.upHole.ID})
		a.boost = StatusWaiting
		a.waitSince = ctx.Tick
		return CommsWithAllySelfInitiated, nil
	}

	switch a.allyBoost {
	case StatusBoosting:
		a.boost = StatusBeingBoosted
		a.rejections = a.rejections[:0]
		return ReturnToHoleBeingBoosted, nil
	case StatusBeingBoosted:
		a.boost = StatusBoosting
		a.rejections = a.rejections[:0]
		return ReturnToHoleBoosting, nil
	case StatusRejection:
		a.boost = StatusRejection
		a.addRejection(a.targetID)
		a.targetID = ""
		a.clearUpHole()
		return Roaming, nil
	}

	if a.timedOut(ctx.Tick) {
		a.boost = StatusRejection
		a.addRejection(a.targetID)
		return Roaming, errors.New(ReasonNegotiationTimeout)
	}
	return CommsWithAllySelfInitiated, nil
}

func (a *Agent) stepCommsOther() (State, error) {
	if a.responded {
		return Roaming, nil
	}
	w := a.drawWillingness()
	status := DecideResponse(w, a.allyWillingness, a.senses.Random)
	if !a.hasUpHole {
		status = StatusRejection
	}
	a.bus.Publish(a.id, a.targetID, bus.StatusReply{Status: status})
	a.responded = true

	switch status {
	case StatusBoosting:
		a.boost = StatusBoosting
		a.rejections = a.rejections[:0]
		return ReturnToHoleBoosting, nil
	case StatusBeingBoosted:
		a.boost = StatusBeingBoosted
		a.rejections = a.rejections[:0]
		return ReturnToHoleBeingBoosted, nil
	}
	a.boost = StatusUndefined
	a.targetID = ""
	a.clearUpHole()
	return Roaming, nil
}
