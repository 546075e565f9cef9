package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/benchrun/pkg/cache"
	"github.com/pario-ai/benchrun/pkg/models"
	"github.com/pario-ai/benchrun/pkg/pool"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// fakeRouter answers "answer:<text>" after an optional per-question delay,
// fails questions listed in fail, and counts invocations per question text.
type fakeRouter struct {
	delay map[string]time.Duration
	fail  map[string]bool
	block map[string]chan struct{}

	total atomic.Int32
	mu    sync.Mutex
	calls map[string]int
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		delay: map[string]time.Duration{},
		fail:  map[string]bool{},
		block: map[string]chan struct{}{},
		calls: map[string]int{},
	}
}

func (f *fakeRouter) Route(ctx context.Context, q models.Question) (string, string, error) {
	f.total.Add(1)
	f.mu.Lock()
	f.calls[q.Text]++
	f.mu.Unlock()

	if ch, ok := f.block[q.Text]; ok {
		<-ch
	}
	if d := f.delay[q.Text]; d > 0 {
		time.Sleep(d)
	}
	if f.fail[q.Text] {
		return "", "fake", &models.ToolError{Kind: models.KindInvocationError, Tool: "fake", Message: "cannot answer " + q.Text}
	}
	return "answer:" + q.Text, "fake", nil
}

func (f *fakeRouter) callsFor(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

func questions(texts ...string) []models.Question {
	qs := make([]models.Question, len(texts))
	for i, t := range texts {
		qs[i] = models.Question{ID: "id-" + t, Text: t}
	}
	return qs
}

func newCache(t *testing.T) *cache.ResultCache {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(), quietLogger())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newCoordinator(c Cache, r *fakeRouter, workers int, timeout time.Duration, opts Options) *Coordinator {
	opts.Logger = quietLogger()
	return New(c, pool.New(workers, timeout, r.Route, quietLogger()), opts)
}

func TestProcess_PreservesInputOrder(t *testing.T) {
	r := newFakeRouter()
	r.delay["A"] = 60 * time.Millisecond
	r.delay["B"] = 30 * time.Millisecond

	co := newCoordinator(newCache(t), r, 3, time.Second, Options{BatchSize: 3})
	results, err := co.Process(context.Background(), questions("A", "B", "C"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, results[i].Question.Text)
		assert.Equal(t, "answer:"+want, results[i].Record.Answer)
		assert.False(t, results[i].Cached)
	}
}

func TestProcess_WarmCacheSkipsRouter(t *testing.T) {
	r := newFakeRouter()
	co := newCoordinator(newCache(t), r, 2, time.Second, Options{BatchSize: 2})
	qs := questions("A", "B", "C", "D", "E")

	first, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.EqualValues(t, 5, r.total.Load())

	r.total.Store(0)
	second, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.Zero(t, r.total.Load(), "warm cache must not invoke the router")

	for i := range qs {
		assert.True(t, second[i].Cached)
		assert.Equal(t, first[i].Record.Answer, second[i].Record.Answer)
	}
}

func TestProcess_FailureIsolation(t *testing.T) {
	r := newFakeRouter()
	r.fail["B"] = true

	co := newCoordinator(newCache(t), r, 3, time.Second, Options{})
	results, err := co.Process(context.Background(), questions("A", "B", "C"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, results[0].Record.Status)
	assert.Equal(t, models.StatusError, results[1].Record.Status)
	assert.Equal(t, models.KindInvocationError, results[1].Record.ErrorKind)
	assert.Contains(t, results[1].Record.Display(), "ERROR(invocation_error)")
	assert.Equal(t, models.StatusSuccess, results[2].Record.Status)
}

func TestProcess_ErrorsCachedUntilClear(t *testing.T) {
	r := newFakeRouter()
	r.fail["B"] = true
	c := newCache(t)
	co := newCoordinator(c, r, 2, time.Second, Options{})
	qs := questions("A", "B")

	_, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.Equal(t, 1, r.callsFor("B"))

	results, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.Equal(t, 1, r.callsFor("B"), "a cached error must not be retried")
	assert.True(t, results[1].Cached)
	assert.True(t, results[1].Record.Failed())

	require.NoError(t, c.Clear(context.Background()))
	_, err = co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.Equal(t, 2, r.callsFor("B"), "cleared cache retries the question")
}

func TestProcess_ConcurrencyBound(t *testing.T) {
	const T = 100 * time.Millisecond
	r := newFakeRouter()
	qs := questions("A", "B", "C", "D", "E")
	for _, q := range qs {
		r.delay[q.Text] = T
	}

	co := newCoordinator(newCache(t), r, 2, 5*time.Second, Options{BatchSize: 5})
	start := time.Now()
	results, err := co.Process(context.Background(), qs)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.GreaterOrEqual(t, elapsed, 3*T, "at most two questions run at once")
	assert.Less(t, elapsed, 5*T, "questions must run in parallel")
}

func TestProcess_TimeoutDoesNotBlockSiblings(t *testing.T) {
	const timeout = 50 * time.Millisecond
	r := newFakeRouter()
	never := make(chan struct{})
	t.Cleanup(func() { close(never) })
	r.block["stuck"] = never

	co := newCoordinator(newCache(t), r, 3, timeout, Options{})
	start := time.Now()
	results, err := co.Process(context.Background(), questions("A", "stuck", "C"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Equal(t, models.StatusSuccess, results[0].Record.Status)
	assert.Equal(t, models.StatusError, results[1].Record.Status)
	assert.Equal(t, models.KindTimeout, results[1].Record.ErrorKind)
	assert.Equal(t, models.StatusSuccess, results[2].Record.Status)
}

func TestProcess_DuplicatesAnsweredOnce(t *testing.T) {
	r := newFakeRouter()
	co := newCoordinator(newCache(t), r, 2, time.Second, Options{})

	qs := []models.Question{
		{ID: "1", Text: "same"},
		{ID: "2", Text: "other"},
		{ID: "3", Text: "same"},
	}
	results, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	require.Len(t, results, 3, "output length equals input length")
	assert.Equal(t, 1, r.callsFor("same"))
	assert.Equal(t, "3", results[2].Question.ID)
	assert.Equal(t, "answer:same", results[2].Record.Answer)
}

func TestProcess_EmptyInput(t *testing.T) {
	co := newCoordinator(newCache(t), newFakeRouter(), 2, time.Second, Options{})
	results, err := co.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcess_Progress(t *testing.T) {
	r := newFakeRouter()
	r.fail["E"] = true

	var events []models.Progress
	co := newCoordinator(newCache(t), r, 2, time.Second, Options{
		BatchSize: 2,
		Progress:  func(p models.Progress) { events = append(events, p) },
	})
	_, err := co.Process(context.Background(), questions("A", "B", "C", "D", "E"))
	require.NoError(t, err)

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Batch)
		assert.Equal(t, 3, ev.Batches)
		assert.Equal(t, 5, ev.Total)
		assert.NotEmpty(t, ev.RunID)
	}
	assert.Equal(t, 2, events[0].Completed)
	assert.Equal(t, 5, events[2].Completed)
	assert.Empty(t, events[0].BatchErrors)
	require.Len(t, events[2].BatchErrors, 1)
	assert.Equal(t, models.StatusError, events[2].BatchErrors[0].Status)
}

func TestProcess_AllCachedEmitsOneProgress(t *testing.T) {
	r := newFakeRouter()
	var events []models.Progress
	co := newCoordinator(newCache(t), r, 2, time.Second, Options{
		Progress: func(p models.Progress) { events = append(events, p) },
	})
	qs := questions("A", "B")

	_, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	events = nil

	_, err = co.Process(context.Background(), qs)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Completed)
	assert.Zero(t, events[0].Batches)
}

func TestProcess_SkipCache(t *testing.T) {
	r := newFakeRouter()
	c := newCache(t)
	co := newCoordinator(c, r, 2, time.Second, Options{SkipCache: true})
	qs := questions("A")

	_, err := co.Process(context.Background(), qs)
	require.NoError(t, err)
	_, err = co.Process(context.Background(), qs)
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.total.Load())

	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Entries, "skipping the cache also skips writes")
	assert.Zero(t, stats.Hits+stats.Misses)
}

func TestProcess_NilCache(t *testing.T) {
	r := newFakeRouter()
	co := newCoordinator(nil, r, 2, time.Second, Options{})
	results, err := co.Process(context.Background(), questions("A"))
	require.NoError(t, err)
	assert.Equal(t, "answer:A", results[0].Record.Answer)
}

type failingCache struct {
	puts atomic.Int32
}

func (f *failingCache) Get(context.Context, string) (models.AnswerRecord, bool, error) {
	return models.AnswerRecord{}, false, cache.ErrStorage
}

func (f *failingCache) Put(context.Context, models.AnswerRecord) error {
	f.puts.Add(1)
	return cache.ErrStorage
}

func TestProcess_CacheFailuresDegrade(t *testing.T) {
	r := newFakeRouter()
	fc := &failingCache{}
	co := newCoordinator(fc, r, 2, time.Second, Options{})

	results, err := co.Process(context.Background(), questions("A", "B"))
	require.NoError(t, err, "storage errors must not fail the run")
	assert.Equal(t, "answer:B", results[1].Record.Answer)
	assert.EqualValues(t, 2, fc.puts.Load())
}

func TestProcess_PoolUnavailable(t *testing.T) {
	r := newFakeRouter()
	p := pool.New(2, time.Second, r.Route, quietLogger())
	p.Close()
	co := New(newCache(t), p, Options{Logger: quietLogger()})

	results, err := co.Process(context.Background(), questions("A"))
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrBatchNotStarted)
	assert.ErrorIs(t, err, pool.ErrUnavailable)
}

func TestProcess_CancelledContext(t *testing.T) {
	co := newCoordinator(newCache(t), newFakeRouter(), 2, time.Second, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := co.Process(ctx, questions("A"))
	assert.ErrorIs(t, err, ErrBatchNotStarted)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProcess_StoppedRunNotCached(t *testing.T) {
	for _, batchSize := range []int{5, 1} {
		t.Run(fmt.Sprintf("batch size %d", batchSize), func(t *testing.T) {
			r := newFakeRouter()
			r.delay["A"] = 100 * time.Millisecond
			c := newCache(t)
			co := newCoordinator(c, r, 1, time.Second, Options{BatchSize: batchSize})

			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(30*time.Millisecond, cancel)
			results, err := co.Process(ctx, questions("A", "B", "C"))
			require.NoError(t, err)
			require.Len(t, results, 3)
			for _, res := range results {
				assert.Equal(t, models.StatusError, res.Record.Status, res.Question.Text)
				assert.Equal(t, models.KindTimeout, res.Record.ErrorKind, res.Question.Text)
			}

			before := r.total.Load()
			results, err = co.Process(context.Background(), questions("A", "B", "C"))
			require.NoError(t, err)
			assert.Equal(t, int32(3), r.total.Load()-before, "stopped questions are answered again")
			for _, res := range results {
				assert.False(t, res.Cached, res.Question.Text)
				assert.Equal(t, models.StatusSuccess, res.Record.Status, res.Question.Text)
			}
		})
	}
}

func TestProcess_TaskTimeoutIsCached(t *testing.T) {
	r := newFakeRouter()
	never := make(chan struct{})
	t.Cleanup(func() { close(never) })
	r.block["stuck"] = never

	c := newCache(t)
	co := newCoordinator(c, r, 1, 30*time.Millisecond, Options{})
	_, err := co.Process(context.Background(), questions("stuck"))
	require.NoError(t, err)

	results, err := co.Process(context.Background(), questions("stuck"))
	require.NoError(t, err)
	assert.True(t, results[0].Cached)
	assert.Equal(t, models.KindTimeout, results[0].Record.ErrorKind)
	assert.Equal(t, 1, r.callsFor("stuck"))
}

type memRecorder struct {
	mu   sync.Mutex
	invs []models.Invocation
	runs []models.RunSummary
}

func (m *memRecorder) RecordInvocation(_ context.Context, inv models.Invocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invs = append(m.invs, inv)
	return nil
}

func (m *memRecorder) RecordRun(_ context.Context, run models.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func TestProcess_RecordsHistory(t *testing.T) {
	r := newFakeRouter()
	r.fail["B"] = true
	rec := &memRecorder{}
	c := newCache(t)
	co := newCoordinator(c, r, 2, time.Second, Options{Recorder: rec})

	_, err := co.Process(context.Background(), questions("A", "B"))
	require.NoError(t, err)
	_, err = co.Process(context.Background(), questions("A", "B"))
	require.NoError(t, err)

	require.Len(t, rec.invs, 2, "cache hits are not invocations")
	require.Len(t, rec.runs, 2)
	assert.Equal(t, rec.invs[0].RunID, rec.runs[0].ID)
	assert.NotEqual(t, rec.runs[0].ID, rec.runs[1].ID)
	assert.Equal(t, 1, rec.runs[0].Failed)
	assert.Equal(t, 2, rec.runs[1].Cached)
	assert.Equal(t, 1, rec.runs[1].Failed)
}
