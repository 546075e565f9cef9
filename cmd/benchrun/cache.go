package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/benchrun/pkg/cache"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the answer cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := cache.Open(cfg.Cache, g.logger())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend: %s\nPath:    %s\nEntries: %d\n", stats.Backend, cfg.Cache.Path, stats.Entries)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached answer, including cached errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := cache.Open(cfg.Cache, g.logger())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All cache entries cleared.")
			return nil
		},
	}

	for _, sub := range []*cobra.Command{statsCmd, clearCmd} {
		sub.Flags().String("cache-backend", "", "cache backend: sqlite, bolt or memory")
		sub.Flags().String("cache-path", "", "cache file path")
	}
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
