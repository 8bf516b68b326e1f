package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"holechase.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	runID := fs.String("run", "", "run id (optional; defaults to the most recently written index)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tick (digest query)")
	agentID := fs.String("agent", "", "agent filter (transitions, catches)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = indexPath(filepath.Join(*dataDir, "worlds", *worldID), *runID)
		if path == "" {
			fmt.Fprintln(os.Stderr, "no index found")
			os.Exit(2)
		}
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()
	ctx := context.Background()

	switch q {
	case "snapshots":
		list, err := r.Snapshots(ctx, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, s := range list {
			printJSON(s)
		}

	case "meta":
		for _, k := range []string{"schema_version", "run_id", "level"} {
			v, err := r.Meta(ctx, k)
			if err != nil {
				fmt.Fprintln(os.Stderr, "query:", err)
				os.Exit(1)
			}
			printJSON(map[string]string{"key": k, "value": v})
		}

	case "transitions", "recoveries":
		trs, err := r.Transitions(ctx, indexdb.TransitionFilter{
			AgentID:      *agentID,
			OnlyRecovery: q == "recoveries",
			Limit:        *limit,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, tr := range trs {
			printJSON(tr)
		}

	case "catches":
		cs, err := r.Catches(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, c := range cs {
			if *agentID == "" || c.AgentID == *agentID {
				printJSON(c)
			}
		}

	case "digest":
		d, ok, err := r.TickDigest(ctx, *tick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "tick not indexed:", *tick)
			os.Exit(1)
		}
		printJSON(map[string]any{"tick": *tick, "digest": d})

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD [-run RUN]|-db PATH] [-tick T] [-agent ID] snapshots|meta|transitions|recoveries|catches|digest")
		os.Exit(2)
	}
}

// indexPath picks <worldDir>/index/<run>.sqlite, or the newest index when run
// is empty.
func indexPath(worldDir, run string) string {
	dir := filepath.Join(worldDir, "index")
	if run != "" {
		return filepath.Join(dir, run+".sqlite")
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		best    string
		bestMod int64
	)
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sqlite") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().UnixNano() > bestMod {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime().UnixNano()
		}
	}
	return best
}
