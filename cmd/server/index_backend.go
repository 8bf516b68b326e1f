package main

import (
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"time"

	"holechase.ai/internal/persistence/indexdb"
	"holechase.ai/internal/persistence/s3mirror"
	"holechase.ai/internal/persistence/snapshot"
	"holechase.ai/internal/sim/level"
	"holechase.ai/internal/sim/tuning"
	"holechase.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	UpsertConfig(runID string, lvl level.Level, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir, runID string, cfg indexConfig, logger *log.Logger) (runtimeIndex, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", runID+".sqlite"))
	case "remote":
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, fmt.Errorf("index backend remote but HOLECHASE_INDEX_ENDPOINT is empty")
		}
		return indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint:      cfg.Endpoint,
			Token:         cfg.Token,
			RunID:         runID,
			BatchSize:     cfg.BatchSize,
			FlushInterval: time.Duration(cfg.FlushMS) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

type multiTickLogger struct {
	a world.TickLogger
	b world.TickLogger
}

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

// openMirror returns nil when no endpoint is configured. Keys are
// <prefix>/<world>/<path under the world dir>.
func openMirror(worldDir, worldID string, cfg mirrorConfig, logger *log.Logger) (*s3mirror.Mirror, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, nil
	}
	client, err := s3mirror.NewClient(s3mirror.Config{
		Endpoint:        cfg.Endpoint,
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return s3mirror.NewMirror(client, s3mirror.MirrorConfig{
		Root:    worldDir,
		Prefix:  path.Join(cfg.Prefix, worldID),
		Workers: cfg.Workers,
		Queue:   cfg.Queue,
		Logger:  logger,
	}), nil
}
