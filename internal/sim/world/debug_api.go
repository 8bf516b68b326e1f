package world

import "holechase.ai/internal/sim/geom"

// Debug helpers are intended for tests and admin tooling. They must be called
// from the world loop goroutine, or while the loop is not running.

func (w *World) DebugStateDigest(nowTick uint64) string { return w.stateDigest(nowTick) }

// DebugPlacePlayer parks the player at (x, z) on floor and holds it there for
// wait ticks before it resumes its route.
func (w *World) DebugPlacePlayer(floor int, x, z float64, wait int) bool {
	if _, ok := w.reg.Elevation(floor); !ok {
		return false
	}
	w.player.floor = floor
	w.player.pos = geom.V(x, w.lvl.Elevation(floor), z)
	w.player.waitLeft = wait
	return true
}
