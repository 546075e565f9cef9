package models

import "time"

// Invocation records a single tool invocation made during a run.
type Invocation struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	QuestionID  string    `json:"question_id"`
	Fingerprint string    `json:"fingerprint"`
	Tool        string    `json:"tool"`
	Status      Status    `json:"status"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunSummary describes one pipeline run.
type RunSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Cached     int       `json:"cached"`
	Failed     int       `json:"failed"`
}

// ToolSummary aggregates invocations per tool and status.
type ToolSummary struct {
	Tool         string `json:"tool"`
	Status       Status `json:"status"`
	Invocations  int    `json:"invocations"`
	AvgLatencyMs int64  `json:"avg_latency_ms"`
	MaxLatencyMs int64  `json:"max_latency_ms"`
}
