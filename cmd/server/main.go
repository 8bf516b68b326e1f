package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"holechase.ai/internal/persistence/archive"
	"holechase.ai/internal/persistence/indexdb"
	persistlog "holechase.ai/internal/persistence/log"
	"holechase.ai/internal/persistence/s3mirror"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	"holechase.ai/internal/sim/world"
	"holechase.ai/internal/transport/observer"
)

func main() {
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := loadServerConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	lvl, err := level.Load(cfg.Level)
	if err != nil {
		logger.Fatalf("load level: %v", err)
	}

	tune, err := tuning.Load(cfg.Tuning)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.Tuning)
		tune = tuning.Defaults()
	}

	worldID := strings.TrimSpace(cfg.WorldID)
	if worldID == "" {
		worldID = lvl.Name
	}
	worldDir := filepath.Join(cfg.DataDir, "worlds", worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	snapshotToLoad := strings.TrimSpace(cfg.Snapshot)
	if snapshotToLoad == "" && cfg.LoadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Create world (fresh or resumed from snapshot).
	var w *world.World
	wcfg := world.WorldConfig{ID: worldID, RunID: cfg.RunID, Seed: cfg.Seed}
	var snap snapshot.SnapshotV1
	if snapshotToLoad != "" {
		snap, err = snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
		}
		wcfg.RunID = snap.Header.RunID
		wcfg.Seed = snap.Seed
		wcfg.TickRateHz = snap.TickRate
	}
	if wcfg.RunID == "" {
		wcfg.RunID = uuid.NewString()
	}

	w, err = world.New(wcfg, lvl, tune, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if snapshotToLoad != "" {
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d run=%s", filepath.Base(snapshotToLoad), w.CurrentTick(), wcfg.RunID)
	} else {
		logger.Printf("fresh run=%s level=%s seed=%d agents=%d", wcfg.RunID, lvl.Name, w.Config().Seed, len(lvl.Agents))
	}

	// Optional read-model index (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, wcfg.RunID, cfg.Index, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfig(wcfg.RunID, lvl, tune); err != nil {
			logger.Printf("index backend: upsert config: %v", err)
		}
	}

	mirror, err := openMirror(worldDir, worldID, cfg.Mirror, logger)
	if err != nil {
		logger.Fatalf("open mirror: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	transitionLog := persistlog.NewTransitionLogger(worldDir)
	defer tickLog.Close()
	defer transitionLog.Close()
	if idx != nil {
		w.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	} else {
		w.SetTickLogger(tickLog)
	}
	w.SetTransitionLogger(transitionLog)
	// Catches are archived with the snapshot of their tick. OnCatch runs on
	// the world goroutine after the tick's state is final.
	catchCh := make(chan catchJob, 8)
	w.OnCatch(func(c enemy.Catch) {
		select {
		case catchCh <- catchJob{snap: w.ExportSnapshot(c.Tick), catch: c}:
		default:
			logger.Printf("catch archive backlog; dropping %s at tick %d", c.AgentID, c.Tick)
		}
		if cfg.StopOnCatch {
			logger.Printf("stop on catch: %s at tick %d", c.AgentID, c.Tick)
			w.Stop()
		}
	})

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	sw := snapshotWriter{worldDir: worldDir, idx: idx, mirror: mirror, logger: logger}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sw.run(ctx, snapCh, catchCh)
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
		cancel()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, worldID, w.Metrics())
		writeIndexMetrics(rw, worldID, idx)
		writeMirrorMetrics(rw, worldID, mirror)
	})

	if cfg.EnableAdminHTTP {
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				RunID   string             `json:"run_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: worldID,
				RunID:   wcfg.RunID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})

		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})

		obsSrv := observer.NewServer(w, logger)
		obsSrv.AllowRemote = cfg.ObserverAllowRemote
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (HOLECHASE_ENABLE_ADMIN_HTTP=false)")
	}
	if cfg.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
	<-writerDone
	mirror.Close()
}

type catchJob struct {
	snap  snapshot.SnapshotV1
	catch enemy.Catch
}

type snapshotWriter struct {
	worldDir string
	idx      runtimeIndex
	mirror   *s3mirror.Mirror
	logger   *log.Logger
}

// run writes snapshots and catch archives until ctx ends, then drains what
// is already queued so a stop right after a catch still archives it.
func (sw snapshotWriter) run(ctx context.Context, snaps <-chan snapshot.SnapshotV1, catches <-chan catchJob) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case snap := <-snaps:
					sw.write(snap)
				case job := <-catches:
					sw.archive(job)
				default:
					return
				}
			}
		case snap := <-snaps:
			sw.write(snap)
		case job := <-catches:
			sw.archive(job)
		}
	}
}

func (sw snapshotWriter) write(snap snapshot.SnapshotV1) (string, bool) {
	path := filepath.Join(sw.worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		sw.logger.Printf("snapshot write: %v", err)
		return "", false
	}
	if sw.idx != nil {
		sw.idx.RecordSnapshot(path, snap)
	}
	sw.mirror.Enqueue(path)
	return path, true
}

func (sw snapshotWriter) archive(job catchJob) {
	path, ok := sw.write(job.snap)
	if !ok {
		return
	}
	archived, err := archive.ArchiveCatch(sw.worldDir, path, job.snap, job.catch)
	if err != nil {
		sw.logger.Printf("archive catch: %v", err)
		return
	}
	sw.logger.Printf("archived catch by %s at tick %d: %s", job.catch.AgentID, job.catch.Tick, archived)
	if err := sw.mirror.EnqueueDir(archived); err != nil {
		sw.logger.Printf("mirror archive: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
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

func isLoopbackRemote(remoteAddr string) bool {
	return observer.IsLoopbackRemote(remoteAddr)
}

// Minimal Prometheus exposition format.
func writeWorldMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics) {
	fmt.Fprintf(rw, "# HELP holechase_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE holechase_world_tick gauge\n")
	fmt.Fprintf(rw, "holechase_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP holechase_world_agents Number of enemy agents.\n")
	fmt.Fprintf(rw, "# TYPE holechase_world_agents gauge\n")
	fmt.Fprintf(rw, "holechase_world_agents{world=%q} %d\n", worldID, m.Agents)

	fmt.Fprintf(rw, "# HELP holechase_world_observers Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE holechase_world_observers gauge\n")
	fmt.Fprintf(rw, "holechase_world_observers{world=%q} %d\n", worldID, m.Observers)

	fmt.Fprintf(rw, "# HELP holechase_player_floor Floor the player is on.\n")
	fmt.Fprintf(rw, "# TYPE holechase_player_floor gauge\n")
	fmt.Fprintf(rw, "holechase_player_floor{world=%q} %d\n", worldID, m.PlayerFloor)

	fmt.Fprintf(rw, "# HELP holechase_agent_state Agents per FSM state.\n")
	fmt.Fprintf(rw, "# TYPE holechase_agent_state gauge\n")
	states := make([]string, 0, len(m.States))
	for s := range m.States {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(rw, "holechase_agent_state{world=%q,state=%q} %d\n", worldID, s, m.States[s])
	}

	fmt.Fprintf(rw, "# HELP holechase_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE holechase_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "holechase_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_join", m.QueueDepths.ObserverJoin)
	fmt.Fprintf(rw, "holechase_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_subscribe", m.QueueDepths.ObserverSubscribe)
	fmt.Fprintf(rw, "holechase_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_leave", m.QueueDepths.ObserverLeave)

	fmt.Fprintf(rw, "# HELP holechase_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE holechase_world_step_ms gauge\n")
	fmt.Fprintf(rw, "holechase_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP holechase_transitions_total FSM transitions since start.\n")
	fmt.Fprintf(rw, "# TYPE holechase_transitions_total counter\n")
	fmt.Fprintf(rw, "holechase_transitions_total{world=%q} %d\n", worldID, m.TransitionsTotal)
	fmt.Fprintf(rw, "holechase_recoveries_total{world=%q} %d\n", worldID, m.RecoveriesTotal)
	fmt.Fprintf(rw, "holechase_catches_total{world=%q} %d\n", worldID, m.CatchesTotal)

	fmt.Fprintf(rw, "# HELP holechase_bus_messages_total Negotiation bus messages since start.\n")
	fmt.Fprintf(rw, "# TYPE holechase_bus_messages_total counter\n")
	fmt.Fprintf(rw, "holechase_bus_messages_total{world=%q,outcome=%q} %d\n", worldID, "published", m.BusTotal.Published)
	fmt.Fprintf(rw, "holechase_bus_messages_total{world=%q,outcome=%q} %d\n", worldID, "delivered", m.BusTotal.Delivered)
	fmt.Fprintf(rw, "holechase_bus_messages_total{world=%q,outcome=%q} %d\n", worldID, "dropped", m.BusTotal.Dropped)
}

func writeIndexMetrics(rw http.ResponseWriter, worldID string, idx runtimeIndex) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := v.Stats()
		fmt.Fprintf(rw, "# HELP holechase_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE holechase_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "holechase_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "sqlite", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP holechase_index_dropped_total Index writes dropped on backpressure.\n")
		fmt.Fprintf(rw, "# TYPE holechase_index_dropped_total counter\n")
		fmt.Fprintf(rw, "holechase_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "holechase_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", s.DropSnapshotTotal)
	case *indexdb.RemoteIndex:
		s := v.Stats()
		fmt.Fprintf(rw, "# HELP holechase_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE holechase_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "holechase_index_queue_depth{world=%q,backend=%q} %d\n", worldID, "remote", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP holechase_index_dropped_total Index writes dropped on backpressure.\n")
		fmt.Fprintf(rw, "# TYPE holechase_index_dropped_total counter\n")
		fmt.Fprintf(rw, "holechase_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "queue", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "holechase_index_flush_fail_total{world=%q} %d\n", worldID, s.FlushFailTotal)
		fmt.Fprintf(rw, "holechase_index_sent_total{world=%q} %d\n", worldID, s.SentTotal)
	}
}

func writeMirrorMetrics(rw http.ResponseWriter, worldID string, m *s3mirror.Mirror) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(rw, "# HELP holechase_mirror_queue_depth Pending artifact uploads.\n")
	fmt.Fprintf(rw, "# TYPE holechase_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "holechase_mirror_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)
	fmt.Fprintf(rw, "# HELP holechase_mirror_uploads_total Artifact uploads by outcome.\n")
	fmt.Fprintf(rw, "# TYPE holechase_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "holechase_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "ok", s.Uploaded)
	fmt.Fprintf(rw, "holechase_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "fail", s.Failed)
	fmt.Fprintf(rw, "holechase_mirror_uploads_total{world=%q,result=%q} %d\n", worldID, "dropped", s.Dropped)
}
