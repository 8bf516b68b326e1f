package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
)

type CatchArchiveMeta struct {
	RunID    string  `json:"run_id"`
	Tick     uint64  `json:"tick"`
	AgentID  string  `json:"agent_id"`
	QuarryID string  `json:"quarry_id"`
	Floor    int     `json:"floor"`
	Distance float64 `json:"distance"`
	Seed     int64   `json:"seed"`

	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveCatch copies the snapshot taken at a catch into
// `worldDir/archives/catch_<tick>_<agent>/` next to a meta.json describing it.
// The snapshot must be the one exported at the catch tick.
func ArchiveCatch(worldDir, snapshotPath string, snap snapshot.SnapshotV1, c enemy.Catch) (archivedPath string, err error) {
	if snap.Header.Tick != c.Tick {
		return "", fmt.Errorf("snapshot tick %d does not match catch tick %d", snap.Header.Tick, c.Tick)
	}

	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("catch_%09d_%s", c.Tick, c.AgentID))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := CatchArchiveMeta{
		RunID:     snap.Header.RunID,
		Tick:      c.Tick,
		AgentID:   c.AgentID,
		QuarryID:  c.QuarryID,
		Floor:     c.Floor,
		Distance:  c.Distance,
		Seed:      snap.Seed,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// ListCatches returns the archived catches of a world, oldest first.
func ListCatches(worldDir string) ([]CatchArchiveMeta, error) {
	ents, err := os.ReadDir(filepath.Join(worldDir, "archives"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []CatchArchiveMeta
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		b, err := os.ReadFile(filepath.Join(worldDir, "archives", e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m CatchArchiveMeta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tick != out[j].Tick {
			return out[i].Tick < out[j].Tick
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
