package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"holechase.ai/internal/sim/enemy"
)

// Reader runs queries against an index written by SQLiteIndex. It does not
// start a writer and is safe to use while the server is running.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// TransitionFilter narrows Transitions. Zero values match everything.
type TransitionFilter struct {
	AgentID      string
	FromTick     uint64
	ToTick       uint64
	OnlyRecovery bool
	Limit        int
}

func (r *Reader) Transitions(ctx context.Context, f TransitionFilter) ([]enemy.Transition, error) {
	q := `SELECT tick, agent_id, floor, from_state, to_state, COALESCE(reason,'') FROM transitions WHERE tick >= ?`
	args := []any{int64(f.FromTick)}
	if f.ToTick > 0 {
		q += ` AND tick <= ?`
		args = append(args, int64(f.ToTick))
	}
	if f.AgentID != "" {
		q += ` AND agent_id = ?`
		args = append(args, f.AgentID)
	}
	if f.OnlyRecovery {
		q += ` AND reason IS NOT NULL`
	}
	q += ` ORDER BY tick, seq`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []enemy.Transition
	for rows.Next() {
		var (
			tick     int64
			tr       enemy.Transition
			from, to string
		)
		if err := rows.Scan(&tick, &tr.AgentID, &tr.Floor, &from, &to, &tr.Reason); err != nil {
			return nil, err
		}
		tr.Tick = uint64(tick)
		if tr.From, err = enemy.ParseState(from); err != nil {
			return nil, err
		}
		if tr.To, err = enemy.ParseState(to); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (r *Reader) Catches(ctx context.Context) ([]enemy.Catch, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tick, agent_id, quarry_id, floor, distance FROM catches ORDER BY tick, agent_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []enemy.Catch
	for rows.Next() {
		var (
			tick int64
			c    enemy.Catch
		)
		if err := rows.Scan(&tick, &c.AgentID, &c.QuarryID, &c.Floor, &c.Distance); err != nil {
			return nil, err
		}
		c.Tick = uint64(tick)
		out = append(out, c)
	}
	return out, rows.Err()
}

// TickDigest returns the recorded digest of one tick.
func (r *Reader) TickDigest(ctx context.Context, tick uint64) (string, bool, error) {
	var d string
	err := r.db.QueryRowContext(ctx, `SELECT digest FROM ticks WHERE tick=?`, int64(tick)).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

type SnapshotInfo struct {
	Tick   uint64 `json:"tick"`
	Path   string `json:"path"`
	RunID  string `json:"run_id"`
	Agents int    `json:"agents"`
}

// LatestSnapshot returns the newest recorded snapshot at or before tick
// (0 means any).
func (r *Reader) LatestSnapshot(ctx context.Context, atOrBefore uint64) (SnapshotInfo, bool, error) {
	q := `SELECT tick, path, run_id, agents FROM snapshots`
	var args []any
	if atOrBefore > 0 {
		q += ` WHERE tick <= ?`
		args = append(args, int64(atOrBefore))
	}
	q += ` ORDER BY tick DESC LIMIT 1`

	var (
		info SnapshotInfo
		tick int64
	)
	err := r.db.QueryRowContext(ctx, q, args...).Scan(&tick, &info.Path, &info.RunID, &info.Agents)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotInfo{}, false, nil
	}
	if err != nil {
		return SnapshotInfo{}, false, err
	}
	info.Tick = uint64(tick)
	return info, true, nil
}

// Snapshots lists recorded snapshots, newest first.
func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick, path, run_id, agents FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info SnapshotInfo
			tick int64
		)
		if err := rows.Scan(&tick, &info.Path, &info.RunID, &info.Agents); err != nil {
			return nil, err
		}
		info.Tick = uint64(tick)
		out = append(out, info)
	}
	return out, rows.Err()
}
