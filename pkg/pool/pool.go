// Package pool runs answer tasks with bounded parallelism and a per-task
// timeout. A task that fails, panics or times out becomes an error record;
// nothing a single task does can fail the whole submission.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/benchrun/pkg/models"
)

// Defaults applied when New is given non-positive values.
const (
	DefaultWorkers = 4
	DefaultTimeout = 2 * time.Minute
)

// ErrUnavailable means the pool cannot accept work at all.
var ErrUnavailable = errors.New("worker pool unavailable")

// InvokeFunc answers one question, returning the answer and the tool used.
type InvokeFunc func(ctx context.Context, q models.Question) (answer, tool string, err error)

// Task is one unit of work.
type Task struct {
	Fingerprint string
	Question    models.Question
}

// Outcome is reported once per finished task. Cancelled is set when the
// submitting context ended before the task produced an answer; such a record
// says nothing about the question itself.
type Outcome struct {
	Task      Task
	Record    models.AnswerRecord
	Latency   time.Duration
	Cancelled bool
}

// Pool executes tasks on at most Workers goroutines.
type Pool struct {
	workers int
	timeout time.Duration
	invoke  InvokeFunc
	logger  *slog.Logger
	closed  atomic.Bool
}

// New creates a Pool.
func New(workers int, timeout time.Duration, invoke InvokeFunc, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{workers: workers, timeout: timeout, invoke: invoke, logger: logger}
}

// Workers returns the concurrency limit.
func (p *Pool) Workers() int { return p.workers }

// Close stops the pool from accepting further submissions.
func (p *Pool) Close() { p.closed.Store(true) }

// Submit runs tasks and returns their records keyed by fingerprint.
// onDone, if set, is called as each task finishes; calls never overlap.
// The only error is ErrUnavailable, returned before any task starts.
func (p *Pool) Submit(ctx context.Context, tasks []Task, onDone func(Outcome)) (map[string]models.AnswerRecord, error) {
	if p.closed.Load() || p.invoke == nil {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	results := make(map[string]models.AnswerRecord, len(tasks))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			start := time.Now()
			rec, cancelled := p.run(ctx, task)
			out := Outcome{Task: task, Record: rec, Latency: time.Since(start), Cancelled: cancelled}

			mu.Lock()
			defer mu.Unlock()
			results[task.Fingerprint] = rec
			if onDone != nil {
				onDone(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

type invocation struct {
	answer string
	tool   string
	err    error
}

// run executes one task and reports whether it was cut short by ctx rather
// than by its own deadline. The invoke goroutine is abandoned on timeout; its
// buffered channel lets it exit whenever the tool finally returns.
func (p *Pool) run(ctx context.Context, task Task) (models.AnswerRecord, bool) {
	rec := models.AnswerRecord{Fingerprint: task.Fingerprint}
	logger := p.logger.With("question_id", task.Question.ID, "fingerprint", short(task.Fingerprint))

	if err := ctx.Err(); err != nil {
		return p.fail(rec, models.KindTimeout, "", fmt.Sprintf("not started: %v", err)), true
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: &models.ToolError{Kind: models.KindInvocationError, Message: fmt.Sprintf("panic: %v", r)}}
			}
		}()
		answer, tool, err := p.invoke(tctx, task.Question)
		done <- invocation{answer: answer, tool: tool, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctx.Err() != nil {
				return p.fail(rec, models.KindTimeout, res.tool, fmt.Sprintf("abandoned: %v", ctx.Err())), true
			}
			kind, tool, msg := classify(res.err, res.tool)
			logger.Debug("task failed", "tool", tool, "kind", kind, "error", msg)
			return p.fail(rec, kind, tool, msg), false
		}
		rec.Answer = res.answer
		rec.Tool = res.tool
		rec.Status = models.StatusSuccess
		rec.CreatedAt = time.Now().UTC()
		logger.Debug("task done", "tool", res.tool)
		return rec, false
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			logger.Debug("task abandoned", "error", err)
			return p.fail(rec, models.KindTimeout, "", fmt.Sprintf("abandoned: %v", err)), true
		}
		logger.Warn("task timed out", "timeout", p.timeout)
		return p.fail(rec, models.KindTimeout, "", fmt.Sprintf("no answer within %s", p.timeout)), false
	}
}

func (p *Pool) fail(rec models.AnswerRecord, kind models.ErrorKind, tool, msg string) models.AnswerRecord {
	rec.Status = models.StatusError
	rec.ErrorKind = kind
	rec.Tool = tool
	rec.Error = msg
	rec.CreatedAt = time.Now().UTC()
	return rec
}

// classify maps an invocation error onto the record's error kind.
func classify(err error, tool string) (models.ErrorKind, string, string) {
	var te *models.ToolError
	if errors.As(err, &te) {
		if te.Tool != "" {
			tool = te.Tool
		}
		kind := te.Kind
		if kind == "" {
			kind = models.KindInvocationError
		}
		msg := te.Message
		if msg == "" && te.Err != nil {
			msg = te.Err.Error()
		}
		return kind, tool, msg
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.KindTimeout, tool, err.Error()
	}
	return models.KindInvocationError, tool, err.Error()
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
