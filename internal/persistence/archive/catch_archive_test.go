package archive

import (
	"os"
	"path/filepath"
	"testing"

	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/enemy"
)

func writeDummySnapshot(t *testing.T, worldDir string) string {
	t.Helper()
	src := filepath.Join(worldDir, "snapshots", "dummy.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	if err := os.WriteFile(src, []byte("dummy"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	return src
}

func TestArchiveCatch_CopiesSnapshotAndMeta(t *testing.T) {
	worldDir := filepath.Join(t.TempDir(), "worlds", "tower")
	src := writeDummySnapshot(t, worldDir)

	snap := snapshot.SnapshotV1{Header: snapshot.Header{Tick: 77, RunID: "r1"}, Seed: 42}
	c := enemy.Catch{Tick: 77, AgentID: "e3", QuarryID: "player", Floor: 2, Distance: 1.1}

	archivedPath, err := ArchiveCatch(worldDir, src, snap, c)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil || string(got) != "dummy" {
		t.Fatalf("archived content=%q err=%v", got, err)
	}

	// A second catch at a later tick sorts after the first.
	snap.Header.Tick = 120
	if _, err := ArchiveCatch(worldDir, src, snap, enemy.Catch{Tick: 120, AgentID: "e1", QuarryID: "player", Floor: 3}); err != nil {
		t.Fatalf("archive 2: %v", err)
	}

	list, err := ListCatches(worldDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].AgentID != "e3" || list[0].RunID != "r1" || list[0].Seed != 42 || list[1].Tick != 120 {
		t.Fatalf("list: %+v", list)
	}
}

func TestArchiveCatch_RejectsTickMismatch(t *testing.T) {
	worldDir := t.TempDir()
	src := writeDummySnapshot(t, worldDir)
	_, err := ArchiveCatch(worldDir, src, snapshot.SnapshotV1{Header: snapshot.Header{Tick: 4}}, enemy.Catch{Tick: 5, AgentID: "e1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestListCatches_NoArchives(t *testing.T) {
	list, err := ListCatches(t.TempDir())
	if err != nil || list != nil {
		t.Fatalf("list=%v err=%v", list, err)
	}
}
