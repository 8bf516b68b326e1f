// Package enemy implements the enemy agent state machine: perception, the
// transition table and the boost/push negotiation carried over the bus.
//
// Every agent runs the same machine, parameterized by a Profile. Messages from
// other agents are staged in an inbox and only become visible on the first
// tick after the one they were published in.
package enemy

import (
	"fmt"

	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/registry"
)

type Config struct {
	ID      string
	Type    string
	Floor   int
	Profile Profile
}

type Agent struct {
	id   string
	typ  string
	prof Profile

	dir    Directory
	bus    *bus.Bus
	loco   Locomotion
	senses Perception
	obs    Observer
	active bool

	floor     int
	state     State
	boost     BoostStatus
	allyBoost BoostStatus

	// targetID is resolved every tick; the agent never owns its target.
	targetID     string
	pushTargetID string

	downHole    registry.Hole
	hasDownHole bool
	nearHole    bool
	upHole      registry.Hole
	hasUpHole   bool
	playerDist  float64

	rejections []string

	inbox []bus.Message

	// One-shot flags set from the inbox and cleared when consumed.
	receivedComms        bool
	receivedPush         bool
	receivedBoostSuccess bool

	allyWillingness float64
	commsFrom       string
	commsHoleID     string
	commsTick       uint64

	canPush    bool
	pushIssued bool
	responded  bool
	catching   bool

	turnAt    uint64
	pushAt    uint64
	waitSince uint64

	// stallTicks counts consecutive blocked steps in the current state.
	stallTicks uint64
}

func New(cfg Config, deps Deps) (*Agent, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("enemy: empty id")
	}
	if deps.Directory == nil || deps.Bus == nil || deps.Loco == nil || deps.Senses == nil {
		return nil, fmt.Errorf("enemy %s: missing dependency", cfg.ID)
	}
	prof := cfg.Profile
	prof.applyDefaults()
	typ := cfg.Type
	if typ == "" {
		typ = prof.Name
	}
	return &Agent{
		id:     cfg.ID,
		typ:    typ,
		prof:   prof,
		dir:    deps.Directory,
		bus:    deps.Bus,
		loco:   deps.Loco,
		senses: deps.Senses,
		obs:    deps.Observer,
		floor:  cfg.Floor,
		state:  Roaming,
	}, nil
}

// Activate subscribes the agent to the negotiation bus.
func (a *Agent) Activate() {
	if a.active {
		return
	}
	a.bus.Subscribe(a.id, a.onMessage)
	a.active = true
}

// Deactivate unsubscribes the agent and discards anything still staged.
func (a *Agent) Deactivate() {
	if !a.active {
		return
	}
	a.bus.Unsubscribe(a.id)
	a.active = false
	a.inbox = nil
}

func (a *Agent) onMessage(m bus.Message) {
	if m.Recipient != a.id {
		return
	}
	a.inbox = append(a.inbox, m)
}

// promoteInbox turns messages published before tick into flags.
func (a *Agent) promoteInbox(tick uint64) {
	if len(a.inbox) == 0 {
		return
	}
	keep := a.inbox[:0]
	for _, m := range a.inbox {
		if m.Tick >= tick {
			keep = append(keep, m)
			continue
		}
		switch p := m.Payload.(type) {
		case bus.Willingness:
			a.receivedComms = true
			a.allyWillingness = p.Value
			a.commsFrom = m.Sender
			a.commsHoleID = p.HoleID
			a.commsTick = m.Tick
		case bus.StatusReply:
			// Replies from anyone but the current negotiation partner are stale.
			if m.Sender == a.targetID {
				a.allyBoost = p.Status
			}
		case bus.BoostSuccessAck:
			a.receivedBoostSuccess = true
		case bus.PushAck:
			a.receivedPush = true
		}
	}
	for i := len(keep); i < len(a.inbox); i++ {
		a.inbox[i] = bus.Message{}
	}
	a.inbox = keep
}

func (a *Agent) ID() string          { return a.id }
func (a *Agent) Type() string        { return a.typ }
func (a *Agent) Profile() Profile    { return a.prof }
func (a *Agent) Active() bool        { return a.active }
func (a *Agent) Floor() int          { return a.floor }
func (a *Agent) State() State        { return a.state }
func (a *Agent) TargetID() string    { return a.targetID }
func (a *Agent) Position() geom.Vec3 { return a.loco.Position() }
func (a *Agent) Heading() geom.Vec3  { return a.loco.Heading() }

func (a *Agent) BoostStatus() BoostStatus     { return a.boost }
func (a *Agent) AllyBoostStatus() BoostStatus { return a.allyBoost }

// NearHole returns the nearest downward hole when it is within detection range.
func (a *Agent) NearHole() (registry.Hole, bool) {
	if !a.nearHole || !a.hasDownHole {
		return registry.Hole{}, false
	}
	return a.downHole, true
}

func (a *Agent) NearestDownwardHole() (registry.Hole, bool) { return a.downHole, a.hasDownHole }
func (a *Agent) NearestUpwardHole() (registry.Hole, bool)   { return a.upHole, a.hasUpHole }

func (a *Agent) RecentRejections() []string {
	out := make([]string, len(a.rejections))
	copy(out, a.rejections)
	return out
}

func (a *Agent) rejected(id string) bool {
	for _, r := range a.rejections {
		if r == id {
			return true
		}
	}
	return false
}

func (a *Agent) addRejection(id string) {
	if id == "" || a.rejected(id) {
		return
	}
	a.rejections = append(a.rejections, id)
	if over := len(a.rejections) - a.prof.RejectionMemory; over > 0 {
		a.rejections = append(a.rejections[:0], a.rejections[over:]...)
	}
}

func (a *Agent) clearUpHole() {
	a.upHole = registry.Hole{}
	a.hasUpHole = false
}

func (a *Agent) setUpHole(h registry.Hole) {
	a.upHole = h
	a.hasUpHole = true
}
