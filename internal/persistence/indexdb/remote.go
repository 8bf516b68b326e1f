package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	"holechase.ai/internal/sim/world"
)

// RemoteConfig configures an HTTP ingest endpoint that receives the same rows
// SQLiteIndex stores locally, in JSON batches.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	RunID         string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained caps how many events a failing endpoint can hold back.
	MaxRetained int
	Logger      *log.Logger
}

type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	flushFail    atomic.Uint64
	queueDropped atomic.Uint64
	sent         atomic.Uint64
}

type RemoteStats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total"`
	FlushFailTotal    uint64 `json:"flush_fail_total"`
	SentTotal         uint64 `json:"sent_total"`
}

type remoteEvent struct {
	Kind    string `json:"kind"`
	RunID   string `json:"run_id"`
	Payload any    `json:"payload"`
}

type remoteTickPayload struct {
	Tick        uint64             `json:"tick"`
	Digest      string             `json:"digest"`
	PlayerFloor int                `json:"player_floor"`
	Transitions []enemy.Transition `json:"transitions,omitempty"`
	Catches     []enemy.Catch      `json:"catches,omitempty"`
	Published   uint64             `json:"published"`
	Delivered   uint64             `json:"delivered"`
	Dropped     uint64             `json:"dropped"`
}

type remoteSnapshotPayload struct {
	Tick        uint64 `json:"tick"`
	Path        string `json:"path"`
	Seed        int64  `json:"seed"`
	Agents      int    `json:"agents"`
	BusSeq      uint64 `json:"bus_seq"`
	PlayerFloor int    `json:"player_floor"`
}

type remoteConfigPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.RunID = strings.TrimSpace(cfg.RunID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty index ingest endpoint")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 8192
	}

	d := &RemoteIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan remoteEvent, 32768),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	return RemoteStats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		QueueDroppedTotal: d.queueDropped.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		SentTotal:         d.sent.Load(),
	}
}

func (d *RemoteIndex) WriteTick(entry world.TickLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := remoteTickPayload{
		Tick:        entry.Tick,
		Digest:      entry.Digest,
		PlayerFloor: entry.PlayerFloor,
		Transitions: entry.Transitions,
		Catches:     entry.Catches,
		Published:   entry.Bus.Published,
		Delivered:   entry.Bus.Delivered,
		Dropped:     entry.Bus.Dropped,
	}
	d.enqueue(remoteEvent{Kind: "tick", RunID: d.cfg.RunID, Payload: p})
	return nil
}

func (d *RemoteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil || d.closed.Load() {
		return
	}
	p := remoteSnapshotPayload{
		Tick:        snap.Header.Tick,
		Path:        path,
		Seed:        snap.Seed,
		Agents:      len(snap.Agents),
		BusSeq:      snap.BusSeq,
		PlayerFloor: snap.Player.Floor,
	}
	d.enqueue(remoteEvent{Kind: "snapshot", RunID: d.cfg.RunID, Payload: p})
}

func (d *RemoteIndex) UpsertConfig(runID string, lvl level.Level, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name string
		data []byte
	}
	var rows []row
	if b, err := json.Marshal(lvl); err == nil {
		rows = append(rows, row{name: "level", data: b})
	}
	if b, err := tune.JSON(); err == nil {
		rows = append(rows, row{name: "tuning", data: b})
	}
	for _, r := range rows {
		sum := sha256.Sum256(r.data)
		d.enqueue(remoteEvent{Kind: "config", RunID: d.cfg.RunID, Payload: remoteConfigPayload{
			Name:      r.name,
			Digest:    hex.EncodeToString(sum[:]),
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *RemoteIndex) enqueue(ev remoteEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.queueDropped.Add(1)
		d.printf("index queue full; drop kind=%s run=%s", ev.Kind, ev.RunID)
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]remoteEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.flushFail.Add(1)
			d.printf("index flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush unless the endpoint has been
			// failing long enough to hold back too much.
			if len(batch) > d.cfg.MaxRetained {
				n := len(batch) - d.cfg.MaxRetained
				d.queueDropped.Add(uint64(n))
				batch = append(batch[:0], batch[n:]...)
			}
			return
		}
		d.sent.Add(uint64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *RemoteIndex) sendBatch(events []remoteEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []remoteEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-holechase-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *RemoteIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
