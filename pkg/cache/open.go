package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pario-ai/benchrun/pkg/cache/bolt"
	"github.com/pario-ai/benchrun/pkg/cache/sqlite"
	"github.com/pario-ai/benchrun/pkg/config"
)

// Open builds a ResultCache for cfg. An unreadable store never fails startup:
// a corrupt file is moved aside and replaced. Any other open failure runs the
// cache in memory for this process and leaves the file untouched. Only an unknown backend is an error.
func Open(cfg config.CacheConfig, logger *slog.Logger) (*ResultCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []Option{WithRetryErrors(cfg.RetryErrors), WithBackendName(cfg.Backend)}

	if cfg.Backend == config.BackendMemory {
		return New(NewMemoryStore(), logger, opts...), nil
	}
	if cfg.Backend != config.BackendSQLite && cfg.Backend != config.BackendBolt {
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("cannot create cache directory, starting cold", "dir", dir, "error", err)
			return coldStart(cfg, logger, opts), nil
		}
	}

	store, err := openStore(cfg.Backend, cfg.Path)
	if err == nil {
		return New(store, logger, opts...), nil
	}

	if !errors.Is(err, sqlite.ErrCorrupt) && !errors.Is(err, bolt.ErrCorrupt) {
		logger.Warn("cache store unavailable, starting cold", "path", cfg.Path, "error", err)
		return coldStart(cfg, logger, opts), nil
	}

	logger.Warn("cache store corrupt, moving it aside", "path", cfg.Path, "error", err)
	if qerr := quarantine(cfg.Path); qerr != nil {
		logger.Warn("cannot move cache store aside, starting cold", "path", cfg.Path, "error", qerr)
		return coldStart(cfg, logger, opts), nil
	}

	store, err = openStore(cfg.Backend, cfg.Path)
	if err != nil {
		logger.Warn("cache store still unreadable, starting cold", "path", cfg.Path, "error", err)
		return coldStart(cfg, logger, opts), nil
	}
	return New(store, logger, opts...), nil
}

func openStore(backend, path string) (Store, error) {
	switch backend {
	case config.BackendBolt:
		return bolt.New(path)
	default:
		return sqlite.New(path)
	}
}

func coldStart(cfg config.CacheConfig, logger *slog.Logger, opts []Option) *ResultCache {
	opts = append(opts, WithBackendName(cfg.Backend+" (memory fallback)"))
	return New(NewMemoryStore(), logger, opts...)
}

// quarantine renames path to path.corrupt-<unix>. SQLite sidecar files go with it.
func quarantine(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	if err := os.Rename(path, path+suffix); err != nil {
		return err
	}
	for _, side := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + side); err == nil {
			_ = os.Rename(path+side, path+side+suffix)
		}
	}
	return nil
}
