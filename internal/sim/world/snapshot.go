package world

import (
	"fmt"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/locomotion"
)

// ExportSnapshot captures the state at the end of nowTick. Must be called
// from the world loop goroutine, or while the loop is not running.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	s := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			RunID:   w.cfg.RunID,
			Level:   w.lvl.Name,
			Tick:    nowTick,
		},
		Seed:               w.cfg.Seed,
		TickRate:           w.cfg.TickRateHz,
		SnapshotEveryTicks: w.cfg.SnapshotEveryTicks,
		BusSeq:             w.bus.Seq(),
		Player:             w.player.export(),
		Agents:             make([]snapshot.AgentV1, 0, len(w.agents)),
	}
	for _, ab := range w.agents {
		body := ab.body.Export()
		s.Agents = append(s.Agents, snapshot.AgentV1{
			ID:      ab.fsm.ID(),
			Profile: ab.profile,
			Pos:     body.Pos,
			Heading: body.Heading,
			Dest:    body.Dest,
			HasDest: body.HasDest,
			Stalled: ab.stalled,
			RNG:     ab.rng.State,
			FSM:     ab.fsm.Export(),
		})
	}
	return s
}

// ImportSnapshot replaces the world state with s. The world must have been
// built from the same level; agents missing from s keep their spawn state.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Header.Level != "" && s.Header.Level != w.lvl.Name {
		return fmt.Errorf("snapshot level %q does not match world level %q", s.Header.Level, w.lvl.Name)
	}
	for _, as := range s.Agents {
		if _, ok := w.byID[as.ID]; !ok {
			return fmt.Errorf("snapshot agent %q not in level", as.ID)
		}
	}

	if s.Seed != 0 {
		w.cfg.Seed = s.Seed
	}
	if s.SnapshotEveryTicks > 0 {
		w.cfg.SnapshotEveryTicks = s.SnapshotEveryTicks
	}
	if s.Header.RunID != "" {
		w.cfg.RunID = s.Header.RunID
	}

	for _, as := range s.Agents {
		ab := w.byID[as.ID]
		ab.body.Restore(locomotion.State{Pos: as.Pos, Heading: as.Heading, Dest: as.Dest, HasDest: as.HasDest})
		ab.stalled = as.Stalled
		ab.rng.State = as.RNG
		ab.fsm.Restore(as.FSM)
	}
	w.bus.SetSeq(s.BusSeq)
	w.player.restore(s.Player)

	w.transitions = w.transitions[:0]
	w.catches = w.catches[:0]
	w.tick.Store(s.Header.Tick + 1)
	return nil
}
