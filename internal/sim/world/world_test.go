package world

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"holechase.ai/internal/observerproto"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
)

type captureTickLogger struct{ entries []TickLogEntry }

func (c *captureTickLogger) WriteTick(e TickLogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

type captureTransitionLogger struct{ trs []enemy.Transition }

func (c *captureTransitionLogger) WriteTransition(tr enemy.Transition) error {
	c.trs = append(c.trs, tr)
	return nil
}

func TestNew_RejectsUnknownProfile(t *testing.T) {
	lvl, tune := loadTower(t)
	lvl.Agents[0].Profile = "ghost"
	if _, err := New(WorldConfig{}, lvl, tune, nil); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}

func TestNew_FillsConfigFromTuning(t *testing.T) {
	w := newTower(t, WorldConfig{})
	cfg := w.Config()
	if cfg.TickRateHz != 30 || cfg.Seed != 1337 {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.ID != "tower" || cfg.RunID == "" {
		t.Fatalf("ids: id=%q run=%q", cfg.ID, cfg.RunID)
	}
	if got := len(w.Agents()); got != 6 {
		t.Fatalf("agents: got %d want 6", got)
	}
}

func TestStep_Invariants(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", Seed: 7})
	floors := map[int]bool{}
	for _, f := range w.Level().FloorNumbers() {
		floors[f] = true
	}

	for i := 0; i < 6000; i++ {
		tick, _ := w.StepOnce()
		for _, v := range w.Agents() {
			if !v.State.Valid() {
				t.Fatalf("tick %d: %s invalid state %d", tick, v.ID, v.State)
			}
			if !floors[v.Floor] {
				t.Fatalf("tick %d: %s on unknown floor %d", tick, v.ID, v.Floor)
			}
			if !v.State.Negotiating() && (v.Boost != enemy.StatusUndefined || v.AllyBoost != enemy.StatusUndefined) {
				t.Fatalf("tick %d: %s in %s with boost=%s ally=%s", tick, v.ID, v.State, v.Boost, v.AllyBoost)
			}
			if elev := w.Level().Elevation(v.Floor); v.Pos.Y != elev {
				t.Fatalf("tick %d: %s at y=%v on floor %d (elevation %v)", tick, v.ID, v.Pos.Y, v.Floor, elev)
			}
		}
	}
	if got := w.CurrentTick(); got != 6000 {
		t.Fatalf("tick: got %d want 6000", got)
	}
}

func TestStep_LoggersSeeEveryTick(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", Seed: 3})
	tl := &captureTickLogger{}
	trl := &captureTransitionLogger{}
	w.SetTickLogger(tl)
	w.SetTransitionLogger(trl)

	var digests []string
	for i := 0; i < 300; i++ {
		_, d := w.StepOnce()
		digests = append(digests, d)
	}
	if len(tl.entries) != 300 {
		t.Fatalf("tick entries: got %d want 300", len(tl.entries))
	}
	total := 0
	for i, e := range tl.entries {
		if e.Tick != uint64(i) {
			t.Fatalf("entry %d has tick %d", i, e.Tick)
		}
		if e.Digest != digests[i] {
			t.Fatalf("entry %d digest mismatch", i)
		}
		total += len(e.Transitions)
	}
	if total != len(trl.trs) {
		t.Fatalf("transition count: tick log %d, transition log %d", total, len(trl.trs))
	}
	if total == 0 {
		t.Fatalf("expected some transitions in 300 ticks")
	}
}

func TestStep_CatchFiresOnce(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", Seed: 3})
	var catches []enemy.Catch
	w.OnCatch(func(c enemy.Catch) { catches = append(catches, c) })

	if !w.DebugPlacePlayer(1, -20, -19, 100) {
		t.Fatalf("DebugPlacePlayer failed")
	}
	for i := 0; i < 20; i++ {
		w.StepOnce()
	}
	n := 0
	for _, c := range catches {
		if c.AgentID == "e1" {
			n++
			if c.QuarryID != "player" || c.Floor != 1 {
				t.Fatalf("catch: %+v", c)
			}
		}
	}
	if n != 1 {
		t.Fatalf("e1 catches: got %d want 1 (%+v)", n, catches)
	}
}

func TestStep_SnapshotSink(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", Seed: 3, SnapshotEveryTicks: 10})
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)

	for i := 0; i < 21; i++ {
		w.StepOnce()
	}
	var got []uint64
	for len(sink) > 0 {
		s := <-sink
		got = append(got, s.Header.Tick)
		if len(s.Agents) != 6 {
			t.Fatalf("snapshot agents: %d", len(s.Agents))
		}
	}
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Fatalf("snapshot ticks: %v", got)
	}
}

func TestObserver_TickAndFloorFilter(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", Seed: 3})
	all := make(chan []byte, 2)
	one := make(chan []byte, 2)
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O1", TickOut: all, DataOut: make(chan []byte, 64)})
	w.handleObserverJoin(ObserverJoinRequest{SessionID: "O2", TickOut: one, DataOut: make(chan []byte, 64), Floors: []int{1}})

	w.StepOnce()

	var msg observerproto.TickMsg
	if err := json.Unmarshal(<-all, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "TICK" || msg.Tick != 0 || len(msg.Agents) != 6 {
		t.Fatalf("tick msg: type=%s tick=%d agents=%d", msg.Type, msg.Tick, len(msg.Agents))
	}
	if msg.Player.ID != "player" || msg.Player.Floor != 3 {
		t.Fatalf("player: %+v", msg.Player)
	}

	msg = observerproto.TickMsg{}
	if err := json.Unmarshal(<-one, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(msg.Agents) != 2 {
		t.Fatalf("floor 1 agents: got %d want 2", len(msg.Agents))
	}
	for _, a := range msg.Agents {
		if a.Floor != 1 {
			t.Fatalf("agent %s on floor %d leaked through filter", a.ID, a.Floor)
		}
	}

	w.handleObserverLeave("O1")
	if _, ok := <-all; ok {
		t.Fatalf("expected tick channel closed after leave")
	}
}

func TestRun_StopAndCancel(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", TickRateHz: 200})
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	time.Sleep(30 * time.Millisecond)
	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
	if w.CurrentTick() == 0 {
		t.Fatalf("expected the loop to have ticked")
	}

	w2 := newTower(t, WorldConfig{ID: "test", TickRateHz: 200})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- w2.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestRequestSnapshot_AndMetrics(t *testing.T) {
	w := newTower(t, WorldConfig{ID: "test", TickRateHz: 200})
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.CurrentTick() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	tick, err := w.RequestSnapshot(rctx)
	if err != nil {
		t.Fatalf("RequestSnapshot: %v", err)
	}
	select {
	case snap := <-sink:
		if snap.Header.Tick != tick || len(snap.Agents) != 6 {
			t.Fatalf("snapshot tick=%d agents=%d want tick=%d", snap.Header.Tick, len(snap.Agents), tick)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot on sink")
	}

	m := w.Metrics()
	if m.Tick == 0 || m.Agents != 6 {
		t.Fatalf("metrics: %+v", m)
	}
	total := 0
	for _, n := range m.States {
		total += n
	}
	if total != 6 {
		t.Fatalf("state counts: %v", m.States)
	}

	cancel()
	<-done
}
