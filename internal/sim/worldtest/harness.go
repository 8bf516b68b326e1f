package worldtest

import (
	"testing"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	world "holechase.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Step()/StepFor() advance via StepOnce() and keep the returned digests
// - Transitions and catches are collected through the world's logger hooks
// - Snapshot() exports at the last completed tick
//
// It intentionally avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Lvl  level.Level
	Tune tuning.Tuning
	W    *world.World

	Digests     map[uint64]string
	Transitions []enemy.Transition
	Catches     []enemy.Catch
}

func LoadTower(t *testing.T) (level.Level, tuning.Tuning) {
	t.Helper()
	lvl, err := level.Load("../../../configs/levels/tower.yaml")
	if err != nil {
		t.Fatalf("load level: %v", err)
	}
	tune, err := tuning.Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	return lvl, tune
}

func NewHarness(t *testing.T, cfg world.WorldConfig, lvl level.Level, tune tuning.Tuning) *Harness {
	t.Helper()
	w, err := world.New(cfg, lvl, tune, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, lvl, tune)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported first.
func NewHarnessWithWorld(t *testing.T, w *world.World, lvl level.Level, tune tuning.Tuning) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{T: t, Lvl: lvl, Tune: tune, W: w, Digests: map[uint64]string{}}
	w.SetTransitionLogger(transitionSink{h})
	w.OnCatch(func(c enemy.Catch) { h.Catches = append(h.Catches, c) })
	return h
}

type transitionSink struct{ h *Harness }

func (s transitionSink) WriteTransition(tr enemy.Transition) error {
	s.h.Transitions = append(s.h.Transitions, tr)
	return nil
}

func (h *Harness) Step() string {
	tick, d := h.W.StepOnce()
	h.Digests[tick] = d
	return d
}

func (h *Harness) StepFor(n int) {
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// StepUntil steps until cond holds, failing the test after max ticks.
func (h *Harness) StepUntil(max int, cond func() bool) {
	h.T.Helper()
	for i := 0; i < max; i++ {
		h.Step()
		if cond() {
			return
		}
	}
	h.T.Fatalf("condition not met after %d ticks", max)
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

func (h *Harness) Agent(id string) world.AgentView {
	h.T.Helper()
	for _, v := range h.W.Agents() {
		if v.ID == id {
			return v
		}
	}
	h.T.Fatalf("unknown agent id: %q", id)
	return world.AgentView{}
}

// TransitionsOf returns the recorded transitions of one agent in order.
func (h *Harness) TransitionsOf(id string) []enemy.Transition {
	var out []enemy.Transition
	for _, tr := range h.Transitions {
		if tr.AgentID == id {
			out = append(out, tr)
		}
	}
	return out
}
