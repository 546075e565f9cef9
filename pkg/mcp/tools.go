package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pario-ai/benchrun/pkg/models"
)

type answerArgs struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
	FileName string `json:"file_name"`
}

type statsArgs struct {
	RunID string `json:"run_id"`
}

type runsArgs struct {
	Limit int `json:"limit"`
}

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"benchrun_answer":      handleAnswer,
	"benchrun_cache_stats": handleCacheStats,
	"benchrun_stats":       handleStats,
	"benchrun_runs":        handleRuns,
}

var toolDefinitions = []ToolDefinition{
	{
		Name:        "benchrun_answer",
		Description: "Answer one benchmark question through the cached pipeline.",
		InputSchema: objectSchema(map[string]Property{
			"question":  {Type: "string", Description: "The question text"},
			"task_id":   {Type: "string", Description: "Task ID, needed to fetch an attachment (optional)"},
			"file_name": {Type: "string", Description: "Attachment file name (optional)"},
		}, "question"),
	},
	{
		Name:        "benchrun_cache_stats",
		Description: "Show answer cache statistics (entries, hits, misses, hit rate, anomalies).",
		InputSchema: objectSchema(nil),
	},
	{
		Name:        "benchrun_stats",
		Description: "Show tool invocation statistics, optionally for one run.",
		InputSchema: objectSchema(map[string]Property{
			"run_id": {Type: "string", Description: "Only this run (optional)"},
		}),
	},
	{
		Name:        "benchrun_runs",
		Description: "List recent pipeline runs, newest first.",
		InputSchema: objectSchema(map[string]Property{
			"limit": {Type: "integer", Description: "Maximum runs to list (default 10)"},
		}),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

func handleAnswer(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.answerer == nil {
		return textResult("Answering is not configured.")
	}
	var args answerArgs
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	if strings.TrimSpace(args.Question) == "" {
		return errorResult("question is required")
	}
	if args.TaskID == "" {
		args.TaskID = "mcp"
	}

	results, err := s.answerer.Process(ctx, []models.Question{{ID: args.TaskID, Text: args.Question, FileName: args.FileName}})
	if err != nil {
		return errorResult("Error answering question: " + err.Error())
	}
	rec := results[0].Record
	if rec.Failed() {
		return errorResult(rec.Display())
	}
	return textResult(rec.Answer)
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleStats(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("History is not configured.")
	}
	var args statsArgs
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	rows, err := s.history.Summary(ctx, args.RunID)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatToolSummaries(rows))
}

func handleRuns(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("History is not configured.")
	}
	args := runsArgs{Limit: 10}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &args)
	}
	runs, err := s.history.Runs(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching runs: " + err.Error())
	}
	return textResult(formatRuns(runs))
}
