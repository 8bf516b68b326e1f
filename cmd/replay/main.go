package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	persistlog "holechase.ai/internal/persistence/log"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	"holechase.ai/internal/sim/world"
)

type replayOptions struct {
	SnapshotPath string
	EventsDir    string
	LevelPath    string
	TuningPath   string
	Seed         int64
	FromTick     uint64
	ToTick       uint64
}

type replayResult struct {
	StartTick uint64
	LastTick  uint64
	Checked   uint64
}

func main() {
	var opts replayOptions
	flag.StringVar(&opts.SnapshotPath, "snapshot", "", "path to .snap.zst to resume from (optional; fresh world when empty)")
	flag.StringVar(&opts.EventsDir, "events", "", "events dir containing events-*.jsonl.zst")
	flag.StringVar(&opts.LevelPath, "level", "./configs/levels/tower.yaml", "path to level yaml")
	flag.StringVar(&opts.TuningPath, "tuning", "./configs/tuning.yaml", "path to tuning.yaml")
	flag.Int64Var(&opts.Seed, "seed", 0, "world seed for a fresh replay (default: tuning seed)")
	flag.Uint64Var(&opts.FromTick, "from_tick", 0, "start verifying from tick (inclusive, optional)")
	flag.Uint64Var(&opts.ToTick, "to_tick", 0, "stop at tick (inclusive, optional)")
	flag.Parse()

	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags)

	if opts.EventsDir == "" {
		if opts.SnapshotPath == "" {
			fmt.Fprintln(os.Stderr, "missing -events (and -snapshot)")
			os.Exit(2)
		}
		h, err := snapshot.ReadHeader(opts.SnapshotPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d world=%s run=%s level=%s tick=%d\n", h.Version, h.WorldID, h.RunID, h.Level, h.Tick)
		return
	}

	res, err := replay(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	logger.Printf("replay ok: checked=%d ticks (start=%d last=%d)", res.Checked, res.StartTick, res.LastTick)
}

func replay(opts replayOptions) (replayResult, error) {
	var res replayResult

	lvl, err := level.Load(opts.LevelPath)
	if err != nil {
		return res, fmt.Errorf("load level: %w", err)
	}
	tune, err := tuning.Load(opts.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return res, fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}

	cfg := world.WorldConfig{Seed: opts.Seed}
	var snap snapshot.SnapshotV1
	if opts.SnapshotPath != "" {
		snap, err = snapshot.ReadSnapshot(opts.SnapshotPath)
		if err != nil {
			return res, fmt.Errorf("read snapshot: %w", err)
		}
		cfg.ID = snap.Header.WorldID
		cfg.RunID = snap.Header.RunID
		cfg.Seed = snap.Seed
		cfg.TickRateHz = snap.TickRate
	}

	w, err := world.New(cfg, lvl, tune, nil)
	if err != nil {
		return res, fmt.Errorf("world: %w", err)
	}
	if opts.SnapshotPath != "" {
		if err := w.ImportSnapshot(snap); err != nil {
			return res, fmt.Errorf("import snapshot: %w", err)
		}
	}

	res.StartTick = w.CurrentTick()
	verifyFrom := opts.FromTick
	if verifyFrom < res.StartTick {
		verifyFrom = res.StartTick
	}

	err = persistlog.ReadTicks(opts.EventsDir, func(entry world.TickLogEntry) error {
		if entry.Tick < res.StartTick {
			return nil
		}
		if opts.ToTick != 0 && entry.Tick > opts.ToTick {
			return persistlog.ErrStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		tick, gotDigest := w.StepOnce()
		res.LastTick = tick
		if tick < verifyFrom {
			return nil
		}
		res.Checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.Checked == 0 {
		return res, fmt.Errorf("no ticks at or after %d in %s", verifyFrom, opts.EventsDir)
	}
	return res, nil
}
