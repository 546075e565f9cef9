// Package pipeline drives a question list through the cache and the worker
// pool and returns one result per question, in input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/benchrun/pkg/cache"
	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/pool"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 5

// ErrBatchNotStarted is returned when the worker pool refuses a batch.
var ErrBatchNotStarted = errors.New("batch failed to start")

// Cache is the subset of *cache.ResultCache the coordinator uses.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (models.AnswerRecord, bool, error)
	Put(ctx context.Context, rec models.AnswerRecord) error
}

// Submitter runs tasks. *pool.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, tasks []pool.Task, onDone func(pool.Outcome)) (map[string]models.AnswerRecord, error)
}

// Recorder receives invocation and run history. *history.SQLiteRecorder implements it.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv models.Invocation) error
	RecordRun(ctx context.Context, run models.RunSummary) error
}

// Options configures a Coordinator.
type Options struct {
	BatchSize int
	// SkipCache disables cache reads and writes for every run.
	SkipCache bool
	Progress  func(models.Progress)
	Recorder  Recorder
	Logger    *slog.Logger
}

// Result pairs a question with its outcome.
type Result struct {
	Question models.Question
	Record   models.AnswerRecord
	Cached   bool
}

// Coordinator is the top-level pipeline driver.
type Coordinator struct {
	cache  Cache
	pool   Submitter
	opts   Options
	logger *slog.Logger
}

// New creates a Coordinator. A nil cache behaves like SkipCache.
func New(c Cache, p Submitter, opts Options) *Coordinator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		opts.SkipCache = true
	}
	return &Coordinator{cache: c, pool: p, opts: opts, logger: logger}
}

// Process answers questions and returns one Result per question in input
// order. Tool failures become error records; the only error returned is
// ErrBatchNotStarted, when the pool cannot accept work.
func (c *Coordinator) Process(ctx context.Context, questions []models.Question) ([]Result, error) {
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID)
	started := time.Now()
	useCache := !c.opts.SkipCache

	results := make([]Result, len(questions))
	waiting := make(map[string][]int)
	var tasks []pool.Task
	completed, cached := 0, 0

	for i, q := range questions {
		fp := cache.Fingerprint(q)
		results[i].Question = q

		if idx, ok := waiting[fp]; ok {
			waiting[fp] = append(idx, i)
			continue
		}
		if useCache {
			rec, hit, err := c.cache.Get(ctx, fp)
			switch {
			case err != nil:
				logger.Warn("cache read failed, treating as miss", "question_id", q.ID, "fingerprint", fp, "error", err)
			case hit:
				results[i].Record = rec
				results[i].Cached = true
				completed++
				cached++
				continue
			}
		}
		waiting[fp] = []int{i}
		tasks = append(tasks, pool.Task{Fingerprint: fp, Question: q})
	}

	size := c.opts.BatchSize
	batches := (len(tasks) + size - 1) / size
	logger.Info("run started", "questions", len(questions), "cached", cached, "to_answer", len(tasks), "batches", batches)

	// Write-through and history must land even if ctx is cancelled mid-run.
	persistCtx := context.WithoutCancel(ctx)

	for b := 0; b < batches; b++ {
		batch := tasks[b*size : min((b+1)*size, len(tasks))]

		if err := ctx.Err(); err != nil && b > 0 {
			logger.Warn("run stopped, remaining batches skipped", "batch", b+1, "batches", batches, "error", err)
			for _, t := range tasks[b*size:] {
				rec := models.AnswerRecord{
					Fingerprint: t.Fingerprint,
					Status:      models.StatusError,
					ErrorKind:   models.KindTimeout,
					Error:       fmt.Sprintf("not started: %v", err),
					CreatedAt:   time.Now().UTC(),
				}
				for _, i := range waiting[t.Fingerprint] {
					results[i].Record = rec
				}
			}
			break
		}

		var batchErrors []models.AnswerRecord
		records, err := c.pool.Submit(ctx, batch, func(out pool.Outcome) {
			// A record cut short by the caller is not an answer to keep.
			if useCache && !out.Cancelled {
				if err := c.cache.Put(persistCtx, out.Record); err != nil {
					logger.Warn("cache write failed", "fingerprint", out.Task.Fingerprint, "error", err)
				}
			}
			c.recordInvocation(persistCtx, logger, runID, out)
			if out.Record.Failed() {
				batchErrors = append(batchErrors, out.Record)
			}
		})
		if err != nil {
			logger.Error("batch failed to start", "batch", b+1, "batches", batches, "error", err)
			return nil, fmt.Errorf("%w: batch %d of %d: %w", ErrBatchNotStarted, b+1, batches, err)
		}

		for _, t := range batch {
			rec, ok := records[t.Fingerprint]
			if !ok {
				rec = models.AnswerRecord{
					Fingerprint: t.Fingerprint,
					Status:      models.StatusError,
					ErrorKind:   models.KindInvocationError,
					Error:       "no result returned",
					CreatedAt:   time.Now().UTC(),
				}
			}
			for _, i := range waiting[t.Fingerprint] {
				results[i].Record = rec
				completed++
			}
		}

		logger.Info("batch done", "batch", b+1, "batches", batches, "completed", completed, "total", len(questions), "errors", len(batchErrors))
		c.emit(models.Progress{
			RunID:       runID,
			Batch:       b + 1,
			Batches:     batches,
			Completed:   completed,
			Total:       len(questions),
			BatchErrors: batchErrors,
		})
	}

	if batches == 0 && len(questions) > 0 {
		c.emit(models.Progress{RunID: runID, Completed: completed, Total: len(questions)})
	}

	failed := 0
	for _, r := range results {
		if r.Record.Failed() {
			failed++
		}
	}
	c.recordRun(persistCtx, logger, models.RunSummary{
		ID:         runID,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Total:      len(questions),
		Cached:     cached,
		Failed:     failed,
	})
	logger.Info("run complete", "total", len(questions), "cached", cached, "failed", failed, "elapsed", time.Since(started).Round(time.Millisecond))

	return results, nil
}

func (c *Coordinator) emit(p models.Progress) {
	if c.opts.Progress != nil {
		c.opts.Progress(p)
	}
}

func (c *Coordinator) recordInvocation(ctx context.Context, logger *slog.Logger, runID string, out pool.Outcome) {
	if c.opts.Recorder == nil {
		return
	}
	err := c.opts.Recorder.RecordInvocation(ctx, models.Invocation{
		RunID:       runID,
		QuestionID:  out.Task.Question.ID,
		Fingerprint: out.Task.Fingerprint,
		Tool:        out.Record.Tool,
		Status:      out.Record.Status,
		ErrorKind:   out.Record.ErrorKind,
		LatencyMs:   out.Latency.Milliseconds(),
		CreatedAt:   out.Record.CreatedAt,
	})
	if err != nil {
		logger.Warn("history write failed", "question_id", out.Task.Question.ID, "error", err)
	}
}

func (c *Coordinator) recordRun(ctx context.Context, logger *slog.Logger, run models.RunSummary) {
	if c.opts.Recorder == nil {
		return
	}
	if err := c.opts.Recorder.RecordRun(ctx, run); err != nil {
		logger.Warn("history write failed", "error", err)
	}
}
