package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/benchrun/pkg/mcp"
	"github.com/pario-ai/benchrun/pkg/scoring"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := g.logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := buildStack(cfg, scoring.New(cfg.Scoring.URL), false, nil, logger)
			if err != nil {
				return err
			}
			defer st.close()

			var cs mcp.CacheStatter
			if st.cache != nil {
				cs = st.cache
			}
			var hr mcp.HistoryReader
			if st.history != nil {
				hr = st.history
			}

			logger.Info("mcp server listening on stdio")
			return mcp.New(st.coordinator, cs, hr, version, logger).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	f := cmd.Flags()
	f.Int("workers", 0, "concurrent questions")
	f.Duration("timeout", 0, "per-question timeout")
	f.String("cache-backend", "", "cache backend: sqlite, bolt or memory")
	f.String("cache-path", "", "cache file path")
	f.String("history-db", "", "history database path")
	return cmd
}
