package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/pipeline"
	"github.com/pario-ai/benchrun/pkg/scoring"
)

const maxAnswerWidth = 200

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		questionsPath string
		outputPath    string
		noCache       bool
		submit        bool
		username      string
		agentCode     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer the benchmark questions",
		Long: "Answer every question, serving repeats from the cache. Questions come from\n" +
			"--questions, or from the scoring API when no file is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := g.logger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := scoring.New(cfg.Scoring.URL)

			var qs []models.Question
			if questionsPath != "" {
				qs, err = loadQuestions(questionsPath)
			} else {
				qs, err = client.FetchQuestions(ctx)
			}
			if err != nil {
				return err
			}

			st, err := buildStack(cfg, client, noCache, progressPrinter(cmd.ErrOrStderr()), logger)
			if err != nil {
				return err
			}
			defer st.close()

			results, err := st.coordinator.Process(ctx, qs)
			if err != nil {
				return err
			}

			if err := printResults(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			if outputPath != "" {
				if err := writeResults(outputPath, results); err != nil {
					return err
				}
			}

			if !submit {
				return nil
			}
			if username == "" {
				username = cfg.Scoring.Username
			}
			if agentCode == "" {
				agentCode = cfg.Scoring.AgentCode
			}
			res, err := client.Submit(ctx, submission(username, agentCode, results))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nSubmitted as %s: score %.1f%% (%d/%d correct)\n%s\n",
				res.Username, res.Score, res.CorrectCount, res.TotalAttempted, res.Message)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&questionsPath, "questions", "q", "", "YAML or JSON question file (default: fetch from the scoring API)")
	f.StringVarP(&outputPath, "output", "o", "", "write results as JSON to this file")
	f.BoolVar(&noCache, "no-cache", false, "neither read nor write the answer cache")
	f.BoolVar(&submit, "submit", false, "submit answers to the scoring API")
	f.StringVar(&username, "username", "", "username for submission (overrides scoring.username)")
	f.StringVar(&agentCode, "agent-code", "", "agent code URL for submission (overrides scoring.agent_code)")

	f.Int("workers", 0, "concurrent questions")
	f.Int("batch-size", 0, "questions per batch")
	f.Duration("timeout", 0, "per-question timeout")
	f.String("cache-backend", "", "cache backend: sqlite, bolt or memory")
	f.String("cache-path", "", "cache file path")
	f.Bool("retry-errors", false, "recompute questions whose cached answer is an error")
	f.String("history-db", "", "history database path")
	f.String("scoring-url", "", "scoring API base URL")
	return cmd
}

func progressPrinter(w io.Writer) func(models.Progress) {
	return func(p models.Progress) {
		if p.Batches == 0 {
			fmt.Fprintf(w, "all %d answers served from cache\n", p.Total)
			return
		}
		fmt.Fprintf(w, "batch %d/%d done: %d/%d answered", p.Batch, p.Batches, p.Completed, p.Total)
		if n := len(p.BatchErrors); n > 0 {
			fmt.Fprintf(w, ", %d failed", n)
		}
		fmt.Fprintln(w)
	}
}

func printResults(out io.Writer, results []pipeline.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK ID\tCACHED\tTOOL\tANSWER")
	for _, r := range results {
		cached := "no"
		if r.Cached {
			cached = "yes"
		}
		tool := r.Record.Tool
		if tool == "" {
			tool = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Question.ID, cached, tool, truncate(r.Record.Display(), maxAnswerWidth))
	}
	return w.Flush()
}

type resultJSON struct {
	TaskID   string              `json:"task_id"`
	Question string              `json:"question"`
	Cached   bool                `json:"cached"`
	Record   models.AnswerRecord `json:"record"`
}

func writeResults(path string, results []pipeline.Result) error {
	out := make([]resultJSON, len(results))
	for i, r := range results {
		out[i] = resultJSON{TaskID: r.Question.ID, Question: r.Question.Text, Cached: r.Cached, Record: r.Record}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func submission(username, agentCode string, results []pipeline.Result) models.Submission {
	sub := models.Submission{Username: username, AgentCode: agentCode}
	for _, r := range results {
		sub.Answers = append(sub.Answers, models.SubmittedAnswer{
			TaskID:          r.Question.ID,
			SubmittedAnswer: r.Record.Display(),
		})
	}
	return sub
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
