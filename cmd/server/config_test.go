package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServerConfig_EnvThenFlags(t *testing.T) {
	t.Setenv("HOLECHASE_ADDR", ":9000")
	t.Setenv("HOLECHASE_SEED", "99")
	t.Setenv("HOLECHASE_STOP_ON_CATCH", "true")
	t.Setenv("HOLECHASE_INDEX_BACKEND", "remote")
	t.Setenv("HOLECHASE_INDEX_ENDPOINT", "http://127.0.0.1:7777/ingest")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := loadServerConfig(fs, []string{"-addr", ":9100"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("flag should win over env: %q", cfg.Addr)
	}
	if cfg.Seed != 99 || !cfg.StopOnCatch {
		t.Fatalf("env overrides: %+v", cfg)
	}
	if cfg.Index.Backend != "remote" || cfg.Index.Endpoint != "http://127.0.0.1:7777/ingest" {
		t.Fatalf("index config: %+v", cfg.Index)
	}
	if cfg.Index.BatchSize != 128 || !cfg.LoadLatest {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, "r1", indexConfig{Backend: "none"}, nil)
	if err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}
	if _, err := openRuntimeIndex(dir, "r1", indexConfig{Backend: "remote"}, nil); err == nil {
		t.Fatalf("expected error for remote without endpoint")
	}
	if _, err := openRuntimeIndex(dir, "r1", indexConfig{Backend: "kafka"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}

	idx, err = openRuntimeIndex(dir, "r1", indexConfig{}, nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index", "r1.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}
}

func TestLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"900.snap.zst", "3000.snap.zst", "junk.snap.zst", "6000.txt"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "3000.snap.zst" {
		t.Fatalf("latest: %q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
}

func TestOpenMirror(t *testing.T) {
	m, err := openMirror(t.TempDir(), "tower", mirrorConfig{}, nil)
	if err != nil || m != nil {
		t.Fatalf("disabled: m=%v err=%v", m, err)
	}
	if _, err := openMirror(t.TempDir(), "tower", mirrorConfig{Endpoint: "r2.example.com"}, nil); err == nil {
		t.Fatalf("expected error without bucket and credentials")
	}
	dir := t.TempDir()
	m, err = openMirror(dir, "tower", mirrorConfig{Endpoint: "r2.example.com", Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s", Prefix: "runs", Queue: 8}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer m.Close()
	key, err := m.Key(filepath.Join(dir, "snapshots", "60.snap.zst"))
	if err != nil || key != "runs/tower/snapshots/60.snap.zst" {
		t.Fatalf("key=%q err=%v", key, err)
	}
	if st := m.Stats(); st.QueueCapacity != 8 || st.Enqueued != 0 {
		t.Fatalf("fresh mirror: %+v", st)
	}
}
