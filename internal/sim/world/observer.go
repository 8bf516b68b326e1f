package world

import (
	"encoding/json"
	"math"

	"holechase.ai/internal/observerproto"
	"holechase.ai/internal/sim/bus"
)

// ObserverJoinRequest registers a read-only observer session that receives:
// - per-tick global state (tickOut, latest wins)
// - transition and catch events (dataOut)
//
// All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID string
	TickOut   chan []byte
	DataOut   chan []byte

	Floors    []int
	TicksOnly bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID string
	Floors    []int
	TicksOnly bool
}

type observerClient struct {
	id      string
	tickOut chan []byte
	dataOut chan []byte

	floors    map[int]bool
	ticksOnly bool
}

func (c *observerClient) wants(floor int) bool {
	return len(c.floors) == 0 || c.floors[floor]
}

func floorSet(floors []int) map[int]bool {
	if len(floors) == 0 {
		return nil
	}
	m := make(map[int]bool, len(floors))
	for _, f := range floors {
		m[f] = true
	}
	return m
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.TickOut == nil || req.DataOut == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.tickOut)
		close(old.dataOut)
	}
	w.observers[req.SessionID] = &observerClient{
		id:        req.SessionID,
		tickOut:   req.TickOut,
		dataOut:   req.DataOut,
		floors:    floorSet(req.Floors),
		ticksOnly: req.TicksOnly,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.floors = floorSet(req.Floors)
	c.ticksOnly = req.TicksOnly
}

func (w *World) handleObserverLeave(sessionID string) {
	c := w.observers[sessionID]
	if c == nil {
		return
	}
	delete(w.observers, sessionID)
	close(c.tickOut)
	close(c.dataOut)
}

func (w *World) closeObservers() {
	for id := range w.observers {
		w.handleObserverLeave(id)
	}
}

func (w *World) stepObservers(nowTick uint64, stats bus.Stats) {
	if len(w.observers) == 0 {
		return
	}

	agents := make([]observerproto.AgentState, 0, len(w.agents))
	for _, ab := range w.agents {
		v := ab.view()
		agents = append(agents, observerproto.AgentState{
			ID:           v.ID,
			Profile:      v.Profile,
			Floor:        v.Floor,
			Pos:          [3]float64{v.Pos.X, v.Pos.Y, v.Pos.Z},
			Yaw:          yawDeg(v.Heading.X, v.Heading.Z),
			State:        v.State.String(),
			Boost:        v.Boost.String(),
			AllyBoost:    v.AllyBoost.String(),
			TargetID:     v.TargetID,
			UpwardHoleID: v.UpwardHole,
			Rejections:   v.Rejections,
		})
	}
	pp := w.player.Position()
	player := observerproto.PlayerState{
		ID:    w.player.ID(),
		Floor: w.player.Floor(),
		Pos:   [3]float64{pp.X, pp.Y, pp.Z},
	}
	busStats := observerproto.BusStats{Published: stats.Published, Delivered: stats.Delivered, Dropped: stats.Dropped}

	var events [][]byte
	var eventFloors []int
	for _, tr := range w.transitions {
		b, err := json.Marshal(observerproto.TransitionMsg{
			Type:            observerproto.TypeTransition,
			ProtocolVersion: observerproto.Version,
			Tick:            tr.Tick,
			AgentID:         tr.AgentID,
			Floor:           tr.Floor,
			From:            tr.From.String(),
			To:              tr.To.String(),
			Reason:          tr.Reason,
		})
		if err == nil {
			events = append(events, b)
			eventFloors = append(eventFloors, tr.Floor)
		}
	}
	for _, c := range w.catches {
		b, err := json.Marshal(observerproto.CatchMsg{
			Type:            observerproto.TypeCatch,
			ProtocolVersion: observerproto.Version,
			Tick:            c.Tick,
			AgentID:         c.AgentID,
			QuarryID:        c.QuarryID,
			Floor:           c.Floor,
			Distance:        c.Distance,
		})
		if err == nil {
			events = append(events, b)
			eventFloors = append(eventFloors, c.Floor)
		}
	}

	for _, c := range w.observers {
		msg := observerproto.TickMsg{
			Type:            observerproto.TypeTick,
			ProtocolVersion: observerproto.Version,
			Tick:            nowTick,
			Player:          player,
			Agents:          agents,
			Bus:             busStats,
		}
		if len(c.floors) > 0 {
			msg.Agents = make([]observerproto.AgentState, 0, len(agents))
			for _, a := range agents {
				if c.wants(a.Floor) {
					msg.Agents = append(msg.Agents, a)
				}
			}
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		sendLatest(c.tickOut, b)

		if c.ticksOnly {
			continue
		}
		for i, ev := range events {
			if !c.wants(eventFloors[i]) {
				continue
			}
			select {
			case c.dataOut <- ev:
			default:
				// Events are best-effort for observers.
			}
		}
	}
}

// yawDeg is the heading's angle from +Z toward +X, in [0, 360).
func yawDeg(x, z float64) float64 {
	d := math.Atan2(x, z) * 180 / math.Pi
	if d < 0 {
		d += 360
	}
	return d
}
