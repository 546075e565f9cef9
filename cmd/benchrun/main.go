package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/benchrun/pkg/config"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "benchrun",
		Short:         "benchrun: cached, concurrent benchmark question runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "benchrun.yaml", "path to config file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(g),
		newCacheCmd(g),
		newStatsCmd(g),
		newMCPCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag and env overrides from cmd.
// The file is optional unless --config was given explicitly.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	l := config.NewLoader()
	if err := l.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := l.Load(g.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
