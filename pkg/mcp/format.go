package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/benchrun/pkg/models"
)

func formatToolSummaries(rows []models.ToolSummary) string {
	if len(rows) == 0 {
		return "No tool invocations recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-8s %11s %8s %8s\n", "Tool", "Status", "Invocations", "Avg ms", "Max ms")
	b.WriteString(strings.Repeat("-", 51) + "\n")
	for _, r := range rows {
		tool := r.Tool
		if tool == "" {
			tool = "-"
		}
		fmt.Fprintf(&b, "%-12s %-8s %11d %8d %8d\n", tool, r.Status, r.Invocations, r.AvgLatencyMs, r.MaxLatencyMs)
	}
	return b.String()
}

func formatRuns(runs []models.RunSummary) string {
	if len(runs) == 0 {
		return "No runs recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %10s %9s %6s %6s\n", "Run ID", "Started", "Duration", "Questions", "Cached", "Failed")
	b.WriteString(strings.Repeat("-", 92) + "\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s %-20s %10s %9d %6d %6d\n",
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Total, r.Cached, r.Failed)
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics (%s)\n"+
		"  Entries:   %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Hit Rate:  %.1f%%\n"+
		"  Anomalies: %d\n",
		stats.Backend, stats.Entries, stats.Hits, stats.Misses, hitRate, stats.Anomalies)
}
