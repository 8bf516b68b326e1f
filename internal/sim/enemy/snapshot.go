package enemy

import (
	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/registry"
)

// Snapshot is the FSM's serializable state. Body position and heading belong
// to the locomotion adapter and are saved separately.
type Snapshot struct {
	ID        string
	Type      string
	Floor     int
	State     State
	Boost     BoostStatus
	AllyBoost BoostStatus

	TargetID     string
	PushTargetID string
	UpHoleID     string
	// Last perceived downward hole. Allies read it before this agent's next
	// perception pass, so it is part of the state.
	DownHoleID string
	NearHole   bool

	Rejections []string
	Inbox      []PendingMessage

	ReceivedComms        bool
	ReceivedPush         bool
	ReceivedBoostSuccess bool
	AllyWillingness      float64
	CommsFrom            string
	CommsHoleID          string
	CommsTick            uint64

	CanPush    bool
	PushIssued bool
	Responded  bool
	Catching   bool

	TurnAt     uint64
	PushAt     uint64
	WaitSince  uint64
	StallTicks uint64
}

// PendingMessage is a staged bus message in flat form.
type PendingMessage struct {
	Seq         uint64
	Tick        uint64
	Sender      string
	Kind        bus.Kind
	Willingness float64
	HoleID      string
	Status      BoostStatus
}

func (a *Agent) Export() Snapshot {
	s := Snapshot{
		ID:                   a.id,
		Type:                 a.typ,
		Floor:                a.floor,
		State:                a.state,
		Boost:                a.boost,
		AllyBoost:            a.allyBoost,
		TargetID:             a.targetID,
		PushTargetID:         a.pushTargetID,
		Rejections:           a.RecentRejections(),
		ReceivedComms:        a.receivedComms,
		ReceivedPush:         a.receivedPush,
		ReceivedBoostSuccess: a.receivedBoostSuccess,
		AllyWillingness:      a.allyWillingness,
		CommsFrom:            a.commsFrom,
		CommsHoleID:          a.commsHoleID,
		CommsTick:            a.commsTick,
		CanPush:              a.canPush,
		PushIssued:           a.pushIssued,
		Responded:            a.responded,
		Catching:             a.catching,
		TurnAt:               a.turnAt,
		PushAt:               a.pushAt,
		WaitSince:            a.waitSince,
		StallTicks:           a.stallTicks,
	}
	if a.hasUpHole {
		s.UpHoleID = a.upHole.ID
	}
	if a.hasDownHole {
		s.DownHoleID = a.downHole.ID
		s.NearHole = a.nearHole
	}
	for _, m := range a.inbox {
		pm := PendingMessage{Seq: m.Seq, Tick: m.Tick, Sender: m.Sender, Kind: m.Kind()}
		switch p := m.Payload.(type) {
		case bus.Willingness:
			pm.Willingness = p.Value
			pm.HoleID = p.HoleID
		case bus.StatusReply:
			pm.Status = p.Status
		}
		s.Inbox = append(s.Inbox, pm)
	}
	return s
}

// Restore loads s into the agent. Unknown states heal to Roaming and unknown
// holes are dropped, matching what Tick would do with them.
func (a *Agent) Restore(s Snapshot) {
	a.floor = s.Floor
	a.state = s.State
	if !a.state.Valid() {
		a.state = Roaming
	}
	a.boost = s.Boost
	a.allyBoost = s.AllyBoost
	a.targetID = s.TargetID
	a.pushTargetID = s.PushTargetID
	a.clearUpHole()
	if h, ok := a.dir.Hole(s.UpHoleID); ok {
		a.setUpHole(h)
	}
	a.downHole, a.hasDownHole, a.nearHole = registry.Hole{}, false, false
	if h, ok := a.dir.Hole(s.DownHoleID); ok {
		a.downHole, a.hasDownHole, a.nearHole = h, true, s.NearHole
	}
	a.rejections = append([]string(nil), s.Rejections...)
	a.receivedComms = s.ReceivedComms
	a.receivedPush = s.ReceivedPush
	a.receivedBoostSuccess = s.ReceivedBoostSuccess
	a.allyWillingness = s.AllyWillingness
	a.commsFrom = s.CommsFrom
	a.commsHoleID = s.CommsHoleID
	a.commsTick = s.CommsTick
	a.canPush = s.CanPush
	a.pushIssued = s.PushIssued
	a.responded = s.Responded
	a.catching = s.Catching
	a.turnAt = s.TurnAt
	a.pushAt = s.PushAt
	a.waitSince = s.WaitSince
	a.stallTicks = s.StallTicks

	a.inbox = a.inbox[:0]
	for _, pm := range s.Inbox {
		var p bus.Payload
		switch pm.Kind {
		case bus.KindCommsInitiate:
			p = bus.Willingness{Value: pm.Willingness, HoleID: pm.HoleID}
		case bus.KindCommsResponse:
			p = bus.StatusReply{Status: pm.Status}
		case bus.KindBoostSuccess:
			p = bus.BoostSuccessAck{}
		case bus.KindPush:
			p = bus.PushAck{}
		default:
			continue
		}
		a.inbox = append(a.inbox, bus.Message{Seq: pm.Seq, Tick: pm.Tick, Sender: pm.Sender, Recipient: a.id, Payload: p})
	}
}

var _ registry.Member = (*Agent)(nil)
