package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/benchrun/pkg/history"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		runID string
		runs  int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tool invocation statistics from past runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}

			h, err := history.New(cfg.History.DBPath)
			if err != nil {
				return err
			}
			defer h.Close()

			ctx := cmd.Context()

			// Run list view
			if runs > 0 {
				list, err := h.Runs(ctx, runs)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Println("No runs recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tQUESTIONS\tCACHED\tFAILED")
				for _, r := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
						r.ID, r.StartedAt.Local().Format("2006-01-02T15:04:05"), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Total, r.Cached, r.Failed)
				}
				return w.Flush()
			}

			summaries, err := h.Summary(ctx, runID)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No tool invocations recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOOL\tSTATUS\tINVOCATIONS\tAVG MS\tMAX MS")
			for _, s := range summaries {
				tool := s.Tool
				if tool == "" {
					tool = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", tool, s.Status, s.Invocations, s.AvgLatencyMs, s.MaxLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only show invocations from this run")
	cmd.Flags().IntVar(&runs, "runs", 0, "list the N most recent runs instead")
	cmd.Flags().String("history-db", "", "history database path")
	return cmd
}
