package world

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot of the
// last completed tick. It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	req := adminSnapshotReq{Resp: resp}

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshot(req adminSnapshotReq) {
	cur := w.tick.Load()

	var resp adminSnapshotResp
	switch {
	case cur == 0:
		resp.Err = "no completed tick yet"
	case w.snapshotSink == nil:
		resp = adminSnapshotResp{Tick: cur - 1, Err: "snapshot sink not configured"}
	default:
		resp.Tick = cur - 1
		select {
		case w.snapshotSink <- w.ExportSnapshot(cur - 1):
		default:
			resp.Err = "snapshot sink backpressure"
		}
	}

	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- resp:
	default:
		// Client timed out; don't block the sim loop.
	}
}
