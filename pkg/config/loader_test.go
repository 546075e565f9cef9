package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.Int("batch-size", 0, "")
	fs.Duration("timeout", 0, "")
	fs.String("cache-path", "", "")
	fs.Bool("retry-errors", false, "")
	return fs
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "benchrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_MissingOptionalFileUsesDefaults(t *testing.T) {
	l := NewLoader()

	cfg, err := l.Load(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline, cfg.Pipeline)
}

func TestLoader_MissingRequiredFileFails(t *testing.T) {
	l := NewLoader()

	_, err := l.Load(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.Error(t, err)
}

func TestLoader_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  workers: 2\n  batch_size: 3\n")

	fs := newFlags()
	l := NewLoader()
	require.NoError(t, l.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--workers", "6", "--timeout", "45s", "--retry-errors"}))

	cfg, err := l.Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pipeline.Workers, "flag should win over file")
	assert.Equal(t, 3, cfg.Pipeline.BatchSize, "unset flag should not clobber file value")
	assert.Equal(t, 45*time.Second, cfg.Pipeline.TaskTimeout)
	assert.True(t, cfg.Cache.RetryErrors)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	t.Setenv("BENCHRUN_PIPELINE_BATCH_SIZE", "9")
	t.Setenv("BENCHRUN_CACHE_PATH", "/tmp/override.db")
	path := writeConfig(t, "pipeline:\n  batch_size: 3\n")

	cfg, err := NewLoader().Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Pipeline.BatchSize)
	assert.Equal(t, "/tmp/override.db", cfg.Cache.Path)
}

func TestLoader_RejectsInvalidOverride(t *testing.T) {
	fs := newFlags()
	l := NewLoader()
	require.NoError(t, l.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--workers", "0"}))

	_, err := l.Load("", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.workers")
}
