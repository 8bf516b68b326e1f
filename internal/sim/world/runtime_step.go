package world

import (
	"time"

	"holechase.ai/internal/sim/enemy"
)

// stepInternal runs one tick: player, every agent's FSM in registration
// order, then body movement. It returns the state digest for the tick.
func (w *World) stepInternal() string {
	start := time.Now()
	nowTick := w.tick.Load()

	w.transitions = w.transitions[:0]
	w.catches = w.catches[:0]

	w.bus.SetTick(nowTick)
	w.player.step()

	ctx := &enemy.TickContext{Tick: nowTick, Player: w.player}
	for _, ab := range w.agents {
		ab.fsm.Tick(ctx)
	}
	for _, ab := range w.agents {
		moved := ab.body.Advance()
		ab.stalled = !moved && !ab.body.AtDestination()
	}
	busStats := w.bus.ResetStats()

	for _, tr := range w.transitions {
		if tr.Reason != "" {
			w.log.Printf("tick %d: %s %s -> %s recovered: %s", tr.Tick, tr.AgentID, tr.From, tr.To, tr.Reason)
		}
		if w.transitionLogger != nil {
			_ = w.transitionLogger.WriteTransition(tr)
		}
	}
	for _, c := range w.catches {
		w.log.Printf("tick %d: %s caught %s on floor %d", c.Tick, c.AgentID, c.QuarryID, c.Floor)
		if w.onCatch != nil {
			w.onCatch(c)
		}
	}

	w.stepObservers(nowTick, busStats)

	digest := w.stateDigest(nowTick)
	if w.tickLogger != nil {
		entry := TickLogEntry{
			Tick:        nowTick,
			PlayerFloor: w.player.Floor(),
			PlayerPos:   w.player.Position(),
			Bus:         busStats,
			Digest:      digest,
		}
		if len(w.transitions) > 0 {
			entry.Transitions = append([]enemy.Transition(nil), w.transitions...)
		}
		if len(w.catches) > 0 {
			entry.Catches = append([]enemy.Catch(nil), w.catches...)
		}
		_ = w.tickLogger.WriteTick(entry)
	}

	// Snapshot every N ticks, starting after tick 0.
	if w.snapshotSink != nil && nowTick != 0 && w.cfg.SnapshotEveryTicks > 0 {
		if nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
			snap := w.ExportSnapshot(nowTick)
			select {
			case w.snapshotSink <- snap:
			default:
				// Drop snapshot if sink is backed up.
			}
		}
	}

	w.storeMetrics(nowTick+1, float64(time.Since(start).Microseconds())/1000.0, busStats)
	w.tick.Add(1)
	return digest
}
