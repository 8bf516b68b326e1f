package world

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/bus"
	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/geom"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/locomotion"
	"holechase.ai/internal/sim/registry"
	"holechase.ai/internal/sim/rng"
	"holechase.ai/internal/sim/tuning"
)

// World is a single-threaded authoritative simulation of one tower.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg  WorldConfig
	lvl  level.Level
	tune tuning.Tuning
	log  *log.Logger

	tick atomic.Uint64

	reg    *registry.Registry
	bus    *bus.Bus
	agents []*agentBody
	byID   map[string]*agentBody
	player *Player

	walls         map[int][]geom.Box
	intersections map[int][]level.Intersection

	// Collected from the agents during the current tick.
	transitions []enemy.Transition
	catches     []enemy.Catch

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger       TickLogger
	transitionLogger TransitionLogger
	onCatch          func(enemy.Catch)

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	observers         map[string]*observerClient
	observerJoin      chan ObserverJoinRequest
	observerSubscribe chan ObserverSubscribeRequest
	observerLeave     chan string

	admin chan adminSnapshotReq

	metrics atomic.Value
	totals  struct {
		transitions uint64
		recoveries  uint64
		catches     uint64
		bus         bus.Stats
	}

	stop     chan struct{}
	stopOnce sync.Once
}

type agentBody struct {
	fsm     *enemy.Agent
	body    *locomotion.Kinematic
	rng     *rng.Source
	profile string
	// stalled is set when the last step toward a goal was blocked by a wall.
	stalled bool
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TransitionLogger interface {
	WriteTransition(tr enemy.Transition) error
}

type TickLogEntry struct {
	Tick        uint64             `json:"tick"`
	PlayerFloor int                `json:"player_floor"`
	PlayerPos   geom.Vec3          `json:"player_pos"`
	Transitions []enemy.Transition `json:"transitions,omitempty"`
	Catches     []enemy.Catch      `json:"catches,omitempty"`
	Bus         bus.Stats          `json:"bus"`
	Digest      string             `json:"digest"`
}

func New(cfg WorldConfig, lvl level.Level, tune tuning.Tuning, logger *log.Logger) (*World, error) {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = tune.TickRateHz
	}
	if cfg.Seed == 0 {
		cfg.Seed = tune.Seed
	}
	if cfg.AgentSpeed <= 0 {
		cfg.AgentSpeed = tune.SpeedPerTick()
	}
	if cfg.PlayerSpeed <= 0 {
		cfg.PlayerSpeed = lvl.Player.Speed
	}
	if cfg.ArrivalTolerance <= 0 {
		cfg.ArrivalTolerance = tune.ArrivalTolerance
	}
	if cfg.SnapshotEveryTicks == 0 {
		cfg.SnapshotEveryTicks = tune.SnapshotEveryTicks
	}
	if cfg.ID == "" {
		cfg.ID = lvl.Name
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if err := lvl.Validate(); err != nil {
		return nil, fmt.Errorf("level %s: %w", lvl.Name, err)
	}
	reg, err := lvl.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("level %s: %w", lvl.Name, err)
	}

	w := &World{
		cfg:           cfg,
		lvl:           lvl,
		tune:          tune,
		log:           logger,
		reg:           reg,
		bus:           bus.New(),
		byID:          map[string]*agentBody{},
		walls:         map[int][]geom.Box{},
		intersections: map[int][]level.Intersection{},
		observers:     map[string]*observerClient{},
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),

		observerSubscribe: make(chan ObserverSubscribeRequest, 64),
		admin:             make(chan adminSnapshotReq, 16),
	}
	for _, f := range lvl.FloorNumbers() {
		w.walls[f] = lvl.WallsOn(f)
		w.intersections[f] = lvl.IntersectionsOn(f)
	}
	w.player = newPlayer(lvl.Player, lvl.Elevations(), cfg.PlayerSpeed)

	rec := recorder{w: w}
	for _, sp := range lvl.Agents {
		prof, err := tune.EnemyProfile(sp.Profile)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", sp.ID, err)
		}
		pos := geom.V(sp.X, lvl.Elevation(sp.Floor), sp.Z)
		ab := &agentBody{
			body:    locomotion.NewKinematic(pos, geom.RotateY(geom.Forward, sp.HeadingDeg), cfg.AgentSpeed, cfg.ArrivalTolerance),
			rng:     rng.New(cfg.Seed, sp.ID),
			profile: sp.Profile,
		}
		fsm, err := enemy.New(enemy.Config{ID: sp.ID, Type: sp.Profile, Floor: sp.Floor, Profile: prof}, enemy.Deps{
			Directory: reg,
			Bus:       w.bus,
			Loco:      ab.body,
			Senses:    &senses{w: w, ab: ab},
			Observer:  rec,
		})
		if err != nil {
			return nil, err
		}
		ab.fsm = fsm
		ab.body.Blocked = func(from, to geom.Vec3) bool { return w.wallAt(ab.fsm.Floor(), to) }
		if err := reg.RegisterAgent(fsm, sp.Profile); err != nil {
			return nil, err
		}
		fsm.Activate()
		w.agents = append(w.agents, ab)
		w.byID[sp.ID] = ab
	}
	return w, nil
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetTransitionLogger(l TransitionLogger)        { w.transitionLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// OnCatch registers a callback for catch events. It runs on the world loop
// goroutine and must not block.
func (w *World) OnCatch(fn func(enemy.Catch)) { w.onCatch = fn }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSubscribe }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig { return w.cfg }
func (w *World) Level() level.Level  { return w.lvl }

// Bus exposes the negotiation bus, mainly for tests that inject messages.
func (w *World) Bus() *bus.Bus { return w.bus }

// Player is the scripted quarry.
func (w *World) Player() *Player { return w.player }

// Agent returns the FSM for id.
func (w *World) Agent(id string) (*enemy.Agent, bool) {
	ab := w.byID[id]
	if ab == nil {
		return nil, false
	}
	return ab.fsm, true
}

// AgentView is a read-only copy of one agent's state.
type AgentView struct {
	ID          string            `json:"id"`
	Profile     string            `json:"profile"`
	Floor       int               `json:"floor"`
	State       enemy.State       `json:"state"`
	Boost       enemy.BoostStatus `json:"boost"`
	AllyBoost   enemy.BoostStatus `json:"ally_boost"`
	TargetID    string            `json:"target_id,omitempty"`
	Pos         geom.Vec3         `json:"pos"`
	Heading     geom.Vec3         `json:"heading"`
	Rejections  []string          `json:"rejections,omitempty"`
	NearHoleID  string            `json:"near_hole_id,omitempty"`
	UpwardHole  string            `json:"upward_hole_id,omitempty"`
	Deactivated bool              `json:"deactivated,omitempty"`
}

// Agents returns views of all agents in registration order.
func (w *World) Agents() []AgentView {
	out := make([]AgentView, 0, len(w.agents))
	for _, ab := range w.agents {
		out = append(out, ab.view())
	}
	return out
}

func (ab *agentBody) view() AgentView {
	a := ab.fsm
	v := AgentView{
		ID:          a.ID(),
		Profile:     ab.profile,
		Floor:       a.Floor(),
		State:       a.State(),
		Boost:       a.BoostStatus(),
		AllyBoost:   a.AllyBoostStatus(),
		TargetID:    a.TargetID(),
		Pos:         a.Position(),
		Heading:     a.Heading(),
		Rejections:  a.RecentRejections(),
		Deactivated: !a.Active(),
	}
	if h, ok := a.NearHole(); ok {
		v.NearHoleID = h.ID
	}
	if h, ok := a.NearestUpwardHole(); ok {
		v.UpwardHole = h.ID
	}
	return v
}

func (w *World) wallAt(floor int, p geom.Vec3) bool {
	for _, b := range w.walls[floor] {
		if b.Contains(p) {
			return true
		}
	}
	return false
}

// recorder collects the agents' transition stream for the current tick.
type recorder struct{ w *World }

func (r recorder) Transition(t enemy.Transition) { r.w.transitions = append(r.w.transitions, t) }
func (r recorder) Caught(c enemy.Catch)          { r.w.catches = append(r.w.catches, c) }
