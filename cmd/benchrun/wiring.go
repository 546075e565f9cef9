package main

import (
	"fmt"
	"log/slog"

	"github.com/pario-ai/benchrun/pkg/cache"
	"github.com/pario-ai/benchrun/pkg/config"
	"github.com/pario-ai/benchrun/pkg/history"
	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/pipeline"
	"github.com/pario-ai/benchrun/pkg/pool"
	"github.com/pario-ai/benchrun/pkg/router"
	"github.com/pario-ai/benchrun/pkg/scoring"
	"github.com/pario-ai/benchrun/pkg/tools"
)

// stack holds the components shared by run and mcp. cache and history are
// nil when disabled.
type stack struct {
	coordinator *pipeline.Coordinator
	cache       *cache.ResultCache
	history     history.Recorder
	pool        *pool.Pool
}

// buildStack opens the cache and history stores and wires the router, pool
// and coordinator. The caller must call close.
func buildStack(cfg *config.Config, client *scoring.Client, noCache bool, progress func(models.Progress), logger *slog.Logger) (*stack, error) {
	s := &stack{}
	opts := pipeline.Options{
		BatchSize: cfg.Pipeline.BatchSize,
		Progress:  progress,
		Logger:    logger,
	}

	var rc pipeline.Cache
	if cfg.Cache.Enabled && !noCache {
		c, err := cache.Open(cfg.Cache, logger)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		s.cache = c
		rc = c
	}

	if cfg.History.Enabled {
		h, err := history.New(cfg.History.DBPath)
		if err != nil {
			logger.Warn("history disabled", "path", cfg.History.DBPath, "error", err)
		} else {
			s.history = h
			opts.Recorder = h
		}
	}

	rt := newRouter(cfg, client, logger)
	s.pool = pool.New(cfg.Pipeline.Workers, cfg.Pipeline.TaskTimeout, rt.Route, logger)
	s.coordinator = pipeline.New(rc, s.pool, opts)
	return s, nil
}

func (s *stack) close() {
	s.pool.Close()
	if s.history != nil {
		_ = s.history.Close()
	}
	if s.cache != nil {
		_ = s.cache.Close()
	}
}

// newRouter wires the tools into the configured routes.
func newRouter(cfg *config.Config, client *scoring.Client, logger *slog.Logger) *router.Router {
	llm := tools.NewLLM(cfg.Providers, logger)
	ts := []router.Tool{
		tools.NewText(),
		tools.NewMath(),
		llm,
		tools.NewSearch(cfg.Tools.Search, llm, logger),
		tools.NewWikipedia(cfg.Tools.Wikipedia.URL, llm),
		tools.NewFile(client, llm, cfg.Tools.File.MaxBytes),
	}
	return router.New(cfg.Router, ts, logger)
}
