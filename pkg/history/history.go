package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/benchrun/pkg/models"
)

// Recorder records and queries tool invocations and pipeline runs.
type Recorder interface {
	// RecordInvocation stores one tool invocation.
	RecordInvocation(ctx context.Context, inv models.Invocation) error
	// RecordRun stores the summary of a finished run.
	RecordRun(ctx context.Context, run models.RunSummary) error
	// Summary aggregates invocations by tool and status, optionally for one run.
	Summary(ctx context.Context, runID string) ([]models.ToolSummary, error)
	// Runs returns the most recent runs, newest first.
	Runs(ctx context.Context, limit int) ([]models.RunSummary, error)
	// Close releases resources.
	Close() error
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRecorder implements Recorder with a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

var _ Recorder = (*SQLiteRecorder)(nil)

const createInvocationsTable = `
CREATE TABLE IF NOT EXISTS invocations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	question_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	tool TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_run ON invocations(run_id);
`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total INTEGER NOT NULL,
	cached INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
`

// New creates a SQLiteRecorder and runs auto-migration.
func New(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createInvocationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs table: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// RecordInvocation stores one tool invocation.
func (r *SQLiteRecorder) RecordInvocation(ctx context.Context, inv models.Invocation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invocations (run_id, question_id, fingerprint, tool, status, error_kind, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.RunID, inv.QuestionID, inv.Fingerprint, inv.Tool, string(inv.Status), string(inv.ErrorKind),
		inv.LatencyMs, inv.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	return nil
}

// RecordRun stores the summary of a finished run.
func (r *SQLiteRecorder) RecordRun(ctx context.Context, run models.RunSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, finished_at, total, cached, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.Total, run.Cached, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Summary returns invocations grouped by tool and status.
func (r *SQLiteRecorder) Summary(ctx context.Context, runID string) ([]models.ToolSummary, error) {
	query := `SELECT tool, status, COUNT(*), CAST(AVG(latency_ms) AS INTEGER), MAX(latency_ms)
		 FROM invocations`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY tool, status ORDER BY tool, status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.ToolSummary
	for rows.Next() {
		var s models.ToolSummary
		var status string
		if err := rows.Scan(&s.Tool, &status, &s.Invocations, &s.AvgLatencyMs, &s.MaxLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Status = models.Status(status)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Runs returns up to limit runs, newest first. A non-positive limit returns all.
func (r *SQLiteRecorder) Runs(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := `SELECT id, started_at, finished_at, total, cached, failed FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var run models.RunSummary
		var started, finished string
		if err := rows.Scan(&run.ID, &started, &finished, &run.Total, &run.Cached, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close releases the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
