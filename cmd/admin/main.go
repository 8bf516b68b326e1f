package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"holechase.ai/internal/persistence/archive"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/geom"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional; lists snapshots and runs of that world)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID == "" {
		entries, err := os.ReadDir(base)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Println(e.Name())
			}
		}
		return
	}

	worldDir := filepath.Join(base, *worldID)
	for _, run := range listRuns(worldDir) {
		fmt.Println("run", run)
	}
	for _, s := range listSnapshots(worldDir) {
		fmt.Println("snapshot", s)
	}
	catches, err := archive.ListCatches(worldDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archives:", err)
		os.Exit(1)
	}
	for _, c := range catches {
		fmt.Printf("catch tick=%d agent=%s floor=%d dist=%.2f\n", c.Tick, c.AgentID, c.Floor, c.Distance)
	}
}

// inspectCmd prints one line per agent from a snapshot.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	agentID := fs.String("agent", "", "only this agent")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -snapshot")
			os.Exit(2)
		}
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	for _, row := range inspectRows(snap, *agentID) {
		printJSON(row)
	}
}

type inspectRow struct {
	Tick       uint64    `json:"tick"`
	ID         string    `json:"id"`
	Profile    string    `json:"profile,omitempty"`
	Floor      int       `json:"floor"`
	State      string    `json:"state"`
	Boost      string    `json:"boost"`
	AllyBoost  string    `json:"ally_boost"`
	TargetID   string    `json:"target_id,omitempty"`
	Pos        geom.Vec3 `json:"pos"`
	Stalled    bool      `json:"stalled,omitempty"`
	Inbox      int       `json:"inbox"`
	Rejections []string  `json:"rejections,omitempty"`
}

func inspectRows(snap snapshot.SnapshotV1, agentID string) []inspectRow {
	out := make([]inspectRow, 0, len(snap.Agents)+1)
	if agentID == "" || agentID == snap.Player.ID {
		out = append(out, inspectRow{
			Tick:  snap.Header.Tick,
			ID:    snap.Player.ID,
			Floor: snap.Player.Floor,
			State: "PLAYER",
			Pos:   snap.Player.Pos,
		})
	}
	for _, a := range snap.Agents {
		if agentID != "" && a.ID != agentID {
			continue
		}
		out = append(out, inspectRow{
			Tick:       snap.Header.Tick,
			ID:         a.ID,
			Profile:    a.Profile,
			Floor:      a.FSM.Floor,
			State:      a.FSM.State.String(),
			Boost:      a.FSM.Boost.String(),
			AllyBoost:  a.FSM.AllyBoost.String(),
			TargetID:   a.FSM.TargetID,
			Pos:        a.Pos,
			Stalled:    a.Stalled,
			Inbox:      len(a.FSM.Inbox),
			Rejections: a.FSM.Rejections,
		})
	}
	return out
}

func listRuns(worldDir string) []string {
	ents, err := os.ReadDir(filepath.Join(worldDir, "index"))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sqlite") {
			out = append(out, strings.TrimSuffix(e.Name(), ".sqlite"))
		}
	}
	return out
}

func listSnapshots(worldDir string) []string {
	ents, err := os.ReadDir(filepath.Join(worldDir, "snapshots"))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".snap.zst") {
			out = append(out, e.Name())
		}
	}
	return out
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
