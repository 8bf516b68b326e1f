package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"

	"holechase.ai/internal/persistence/indexdb"
	persistlog "holechase.ai/internal/persistence/log"
	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/world"
)

func main() {
	var (
		dbPath   = flag.String("db", "", "sqlite index to read (takes precedence over -dir)")
		worldDir = flag.String("dir", "", "world data dir holding events/ and transitions/ logs")
		agentID  = flag.String("agent", "", "only this agent")
		fromTick = flag.Uint64("from_tick", 0, "first tick (inclusive)")
		toTick   = flag.Uint64("to_tick", 0, "last tick (inclusive, 0 = no limit)")
		recovery = flag.Bool("recovery", false, "only self-healed transitions")
		limit    = flag.Int("limit", 0, "max transitions (0 = no limit)")
		noColor  = flag.Bool("no_color", false, "disable colors")
	)
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}

	f := indexdb.TransitionFilter{
		AgentID:      *agentID,
		FromTick:     *fromTick,
		ToTick:       *toTick,
		OnlyRecovery: *recovery,
		Limit:        *limit,
	}

	var (
		tl  timeline
		err error
	)
	switch {
	case *dbPath != "":
		tl, err = loadFromIndex(context.Background(), *dbPath, f)
	case *worldDir != "":
		tl, err = loadFromLogs(*worldDir, f)
	default:
		fmt.Fprintln(os.Stderr, "missing -db or -dir")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "trace:", err)
		os.Exit(1)
	}
	render(os.Stdout, tl)
}

type timeline struct {
	Transitions []enemy.Transition
	Catches     []enemy.Catch
}

func loadFromIndex(ctx context.Context, path string, f indexdb.TransitionFilter) (timeline, error) {
	r, err := indexdb.OpenReader(path)
	if err != nil {
		return timeline{}, err
	}
	defer r.Close()

	trs, err := r.Transitions(ctx, f)
	if err != nil {
		return timeline{}, fmt.Errorf("transitions: %w", err)
	}
	cs, err := r.Catches(ctx)
	if err != nil {
		return timeline{}, fmt.Errorf("catches: %w", err)
	}
	return timeline{Transitions: trs, Catches: filterCatches(cs, f)}, nil
}

func loadFromLogs(dir string, f indexdb.TransitionFilter) (timeline, error) {
	var tl timeline
	err := persistlog.ReadTransitions(filepath.Join(dir, persistlog.TransitionPrefix), func(tr enemy.Transition) error {
		if !matches(tr, f) {
			return nil
		}
		tl.Transitions = append(tl.Transitions, tr)
		if f.Limit > 0 && len(tl.Transitions) >= f.Limit {
			return persistlog.ErrStop
		}
		return nil
	})
	if err != nil {
		return tl, fmt.Errorf("transitions: %w", err)
	}

	var cs []enemy.Catch
	err = persistlog.ReadTicks(filepath.Join(dir, persistlog.TickPrefix), func(e world.TickLogEntry) error {
		cs = append(cs, e.Catches...)
		return nil
	})
	// A run without a tick log still has a useful transition timeline.
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return tl, fmt.Errorf("ticks: %w", err)
	}
	tl.Catches = filterCatches(cs, f)
	return tl, nil
}

func matches(tr enemy.Transition, f indexdb.TransitionFilter) bool {
	if tr.Tick < f.FromTick || (f.ToTick > 0 && tr.Tick > f.ToTick) {
		return false
	}
	if f.AgentID != "" && tr.AgentID != f.AgentID {
		return false
	}
	if f.OnlyRecovery && tr.Reason == "" {
		return false
	}
	return true
}

func filterCatches(cs []enemy.Catch, f indexdb.TransitionFilter) []enemy.Catch {
	if f.OnlyRecovery {
		return nil
	}
	out := cs[:0:0]
	for _, c := range cs {
		if c.Tick < f.FromTick || (f.ToTick > 0 && c.Tick > f.ToTick) {
			continue
		}
		if f.AgentID != "" && c.AgentID != f.AgentID {
			continue
		}
		out = append(out, c)
	}
	return out
}

var (
	tickColor     = color.New(color.Faint).SprintFunc()
	agentColor    = color.New(color.Bold).SprintFunc()
	chaseColor    = color.New(color.FgRed).SprintFunc()
	negotiateCol  = color.New(color.FgCyan).SprintFunc()
	fallColor     = color.New(color.FgYellow).SprintFunc()
	roamColor     = color.New(color.FgGreen).SprintFunc()
	recoveryColor = color.New(color.FgMagenta, color.Bold).SprintFunc()
	catchColor    = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

func stateColor(s enemy.State) string {
	switch {
	case s == enemy.Chasing || s == enemy.AbleToPush || s == enemy.Pushing:
		return chaseColor(s.String())
	case s == enemy.JumpingDown || s == enemy.BeingPushed:
		return fallColor(s.String())
	case s.Negotiating() || s == enemy.SearchingAlly || s == enemy.ChasingAlly:
		return negotiateCol(s.String())
	default:
		return roamColor(s.String())
	}
}

// render prints transitions and catches merged by tick. Catches sort after
// the transitions of the same tick since they are raised at the end of it.
func render(out io.Writer, tl timeline) {
	type line struct {
		tick  uint64
		order int
		text  string
	}
	lines := make([]line, 0, len(tl.Transitions)+len(tl.Catches))
	for i, tr := range tl.Transitions {
		text := fmt.Sprintf("%s  %-4s f%d  %s -> %s",
			tickColor(fmt.Sprintf("%8d", tr.Tick)), agentColor(tr.AgentID), tr.Floor, stateColor(tr.From), stateColor(tr.To))
		if tr.Reason != "" {
			text += "  " + recoveryColor("recovered: "+tr.Reason)
		}
		lines = append(lines, line{tick: tr.Tick, order: i, text: text})
	}
	for i, c := range tl.Catches {
		text := fmt.Sprintf("%s  %-4s f%d  %s %s (%.2f)",
			tickColor(fmt.Sprintf("%8d", c.Tick)), agentColor(c.AgentID), c.Floor, catchColor("CAUGHT"), c.QuarryID, c.Distance)
		lines = append(lines, line{tick: c.Tick, order: len(tl.Transitions) + i, text: text})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].tick != lines[j].tick {
			return lines[i].tick < lines[j].tick
		}
		return lines[i].order < lines[j].order
	})
	for _, l := range lines {
		fmt.Fprintln(out, l.text)
	}
	fmt.Fprintf(out, "%d transitions, %d catches\n", len(tl.Transitions), len(tl.Catches))
}
