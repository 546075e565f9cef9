package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/scoring"
	"github.com/pario-ai/benchrun/pkg/tools"
)

func TestBuildStack_RecordsHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = config.BackendMemory
	cfg.History.DBPath = filepath.Join(t.TempDir(), "history.db")
	cfg.Providers = nil
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	s, err := buildStack(cfg, scoring.New("http://127.0.0.1:0"), false, nil, logger)
	require.NoError(t, err)
	defer s.close()
	require.NotNil(t, s.history)

	ctx := context.Background()
	results, err := s.coordinator.Process(ctx, []models.Question{{ID: "q1", Text: "What is 2+4*12?"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "50", results[0].Record.Answer)
	assert.Equal(t, tools.MathName, results[0].Record.Tool)

	runs, err := s.history.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	summary, err := s.history.Summary(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, summary)
	assert.Equal(t, tools.MathName, summary[0].Tool)
}
