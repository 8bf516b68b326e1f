package main

import (
	"path/filepath"
	"strings"
	"testing"

	persistlog "holechase.ai/internal/persistence/log"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	"holechase.ai/internal/sim/world"
)

const (
	levelPath  = "../../configs/levels/tower.yaml"
	tuningPath = "../../configs/tuning.yaml"
)

// recordRun steps a fresh world for n ticks with a tick log under dir and
// returns the snapshot exported at snapTick.
func recordRun(t *testing.T, dir string, seed int64, n int, snapTick uint64) snapshot.SnapshotV1 {
	t.Helper()
	lvl, err := level.Load(levelPath)
	if err != nil {
		t.Fatalf("load level: %v", err)
	}
	tune, err := tuning.Load(tuningPath)
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "tower", RunID: "rec", Seed: seed}, lvl, tune, nil)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	tl := persistlog.NewTickLogger(dir)
	w.SetTickLogger(tl)

	var snap snapshot.SnapshotV1
	for i := 0; i < n; i++ {
		tick, _ := w.StepOnce()
		if tick == snapTick {
			snap = w.ExportSnapshot(tick)
		}
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close tick log: %v", err)
	}
	return snap
}

func TestReplay_FreshRunMatchesLog(t *testing.T) {
	dir := t.TempDir()
	recordRun(t, dir, 7, 400, 0)

	res, err := replay(replayOptions{
		EventsDir:  filepath.Join(dir, "events"),
		LevelPath:  levelPath,
		TuningPath: tuningPath,
		Seed:       7,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Checked != 400 || res.LastTick != 399 {
		t.Fatalf("result: %+v", res)
	}
}

func TestReplay_WrongSeedDiverges(t *testing.T) {
	dir := t.TempDir()
	recordRun(t, dir, 7, 50, 0)

	_, err := replay(replayOptions{
		EventsDir:  filepath.Join(dir, "events"),
		LevelPath:  levelPath,
		TuningPath: tuningPath,
		Seed:       8,
	})
	if err == nil || !strings.Contains(err.Error(), "digest mismatch at tick 0") {
		t.Fatalf("expected digest mismatch at tick 0, got %v", err)
	}
}

func TestReplay_FromSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := recordRun(t, dir, 7, 300, 120)

	snapPath := filepath.Join(dir, "snapshots", "120.snap.zst")
	if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	res, err := replay(replayOptions{
		SnapshotPath: snapPath,
		EventsDir:    filepath.Join(dir, "events"),
		LevelPath:    levelPath,
		TuningPath:   tuningPath,
		ToTick:       250,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.StartTick != 121 || res.LastTick != 250 || res.Checked != 130 {
		t.Fatalf("result: %+v", res)
	}
}
