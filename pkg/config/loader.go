package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to override environment variables,
// e.g. BENCHRUN_PIPELINE_WORKERS.
const EnvPrefix = "BENCHRUN"

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"workers":       "pipeline.workers",
	"batch-size":    "pipeline.batch_size",
	"timeout":       "pipeline.task_timeout",
	"cache-backend": "cache.backend",
	"cache-path":    "cache.path",
	"retry-errors":  "cache.retry_errors",
	"history-db":    "history.db_path",
	"scoring-url":   "scoring.url",
}

// Loader layers flag and environment overrides on top of the YAML file.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader reading BENCHRUN_* environment variables.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlags binds whichever override flags exist in fs.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path (if present), applies overrides and validates the result.
// A missing file falls back to defaults unless required is set.
func (l *Loader) Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, err
		}
	}

	l.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (l *Loader) apply(cfg *Config) {
	if l.v.IsSet("pipeline.workers") {
		cfg.Pipeline.Workers = l.v.GetInt("pipeline.workers")
	}
	if l.v.IsSet("pipeline.batch_size") {
		cfg.Pipeline.BatchSize = l.v.GetInt("pipeline.batch_size")
	}
	if l.v.IsSet("pipeline.task_timeout") {
		cfg.Pipeline.TaskTimeout = l.v.GetDuration("pipeline.task_timeout")
	}
	if l.v.IsSet("cache.backend") {
		cfg.Cache.Backend = l.v.GetString("cache.backend")
	}
	if l.v.IsSet("cache.path") {
		cfg.Cache.Path = l.v.GetString("cache.path")
	}
	if l.v.IsSet("cache.retry_errors") {
		cfg.Cache.RetryErrors = l.v.GetBool("cache.retry_errors")
	}
	if l.v.IsSet("history.db_path") {
		cfg.History.DBPath = l.v.GetString("history.db_path")
	}
	if l.v.IsSet("scoring.url") {
		cfg.Scoring.URL = l.v.GetString("scoring.url")
	}
}
