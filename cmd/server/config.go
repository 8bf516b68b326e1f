package main

import (
	"flag"

	"github.com/kelseyhightower/envconfig"
)

// serverConfig holds runtime settings. HOLECHASE_* environment variables
// replace the built-in defaults; explicit flags win over both.
type serverConfig struct {
	Addr    string `envconfig:"ADDR"`
	DataDir string `envconfig:"DATA"`
	Level   string `envconfig:"LEVEL"`
	Tuning  string `envconfig:"TUNING"`
	WorldID string `envconfig:"WORLD"`
	RunID   string `envconfig:"RUN_ID"`
	Seed    int64  `envconfig:"SEED"`

	Snapshot   string `envconfig:"SNAPSHOT"`
	LoadLatest bool   `envconfig:"LOAD_LATEST_SNAPSHOT"`

	StopOnCatch bool `envconfig:"STOP_ON_CATCH"`

	// Read from HOLECHASE_INDEX_*.
	Index indexConfig
	// Read from HOLECHASE_MIRROR_*. Disabled when Endpoint is empty.
	Mirror mirrorConfig

	EnableAdminHTTP     bool `envconfig:"ENABLE_ADMIN_HTTP"`
	EnablePprofHTTP     bool `envconfig:"ENABLE_PPROF_HTTP"`
	ObserverAllowRemote bool `envconfig:"OBSERVER_ALLOW_REMOTE"`
}

type indexConfig struct {
	Backend   string `envconfig:"BACKEND"`
	Endpoint  string `envconfig:"ENDPOINT"`
	Token     string `envconfig:"TOKEN"`
	BatchSize int    `envconfig:"BATCH_SIZE"`
	FlushMS   int    `envconfig:"FLUSH_MS"`
}

type mirrorConfig struct {
	Endpoint        string `envconfig:"ENDPOINT"`
	Bucket          string `envconfig:"BUCKET"`
	Region          string `envconfig:"REGION"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
	Prefix          string `envconfig:"PREFIX"`
	Workers         int    `envconfig:"WORKERS"`
	Queue           int    `envconfig:"QUEUE"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            ":8080",
		DataDir:         "./data",
		Level:           "./configs/levels/tower.yaml",
		Tuning:          "./configs/tuning.yaml",
		LoadLatest:      true,
		EnableAdminHTTP: true,
		Index: indexConfig{
			Backend:   "sqlite",
			BatchSize: 128,
			FlushMS:   500,
		},
		Mirror: mirrorConfig{
			Workers: 2,
			Queue:   256,
		},
	}
}

func loadServerConfig(fs *flag.FlagSet, args []string) (serverConfig, error) {
	cfg := defaultServerConfig()
	if err := envconfig.Process("HOLECHASE", &cfg); err != nil {
		return cfg, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.Level, "level", cfg.Level, "path to level yaml")
	fs.StringVar(&cfg.Tuning, "tuning", cfg.Tuning, "path to tuning.yaml (defaults are used if missing)")
	fs.StringVar(&cfg.WorldID, "world", cfg.WorldID, "world id (default: level name)")
	fs.StringVar(&cfg.RunID, "run", cfg.RunID, "run id (default: random uuid, or the snapshot's)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "world seed (default: tuning seed; ignored when resuming)")
	fs.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "path to snapshot to resume from (optional)")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", cfg.LoadLatest, "resume from the latest snapshot in the data dir when -snapshot is empty")
	fs.BoolVar(&cfg.StopOnCatch, "stop_on_catch", cfg.StopOnCatch, "shut down after the first catch")
	fs.StringVar(&cfg.Index.Backend, "index", cfg.Index.Backend, "index backend: sqlite, remote or none")
	fs.BoolVar(&cfg.ObserverAllowRemote, "observer_allow_remote", cfg.ObserverAllowRemote, "serve observer endpoints to non-loopback clients")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}
