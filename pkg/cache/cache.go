// Package cache maps question fingerprints to answer records.
//
// A ResultCache wraps a durable Store. Reads run concurrently; writes are
// mutually exclusive so concurrent workers never interleave records. A put of
// identical content is a no-op, while a put of different content for an
// existing fingerprint overwrites it and is logged as an anomaly.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pario-ai/benchrun/pkg/models"
)

// ErrStorage wraps every failure of the underlying store so callers can tell
// an I/O problem apart from a miss.
var ErrStorage = errors.New("cache storage error")

// Store is a durable fingerprint → record mapping.
type Store interface {
	Load(ctx context.Context, fingerprint string) (models.AnswerRecord, bool, error)
	Save(ctx context.Context, rec models.AnswerRecord) error
	Count(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
	Close() error
}

// ResultCache is the only owner of a Store.
type ResultCache struct {
	store       Store
	backend     string
	retryErrors bool
	logger      *slog.Logger

	mu        sync.RWMutex
	hits      atomic.Int64
	misses    atomic.Int64
	anomalies atomic.Int64
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithRetryErrors makes cached error records count as misses.
func WithRetryErrors(retry bool) Option {
	return func(c *ResultCache) { c.retryErrors = retry }
}

// WithBackendName labels the cache in stats output.
func WithBackendName(name string) Option {
	return func(c *ResultCache) { c.backend = name }
}

// New wraps store.
func New(store Store, logger *slog.Logger, opts ...Option) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ResultCache{store: store, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the record cached for fingerprint.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) (models.AnswerRecord, bool, error) {
	c.mu.RLock()
	rec, ok, err := c.store.Load(ctx, fingerprint)
	c.mu.RUnlock()

	if err != nil {
		return models.AnswerRecord{}, false, fmt.Errorf("%w: get %s: %w", ErrStorage, fingerprint, err)
	}
	if !ok || (c.retryErrors && rec.Failed()) {
		c.misses.Add(1)
		return models.AnswerRecord{}, false, nil
	}

	c.hits.Add(1)
	return rec, true, nil
}

// Put stores rec under rec.Fingerprint.
func (c *ResultCache) Put(ctx context.Context, rec models.AnswerRecord) error {
	if rec.Fingerprint == "" {
		return errors.New("cache put: empty fingerprint")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok, err := c.store.Load(ctx, rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrStorage, rec.Fingerprint, err)
	}
	if ok {
		if existing.SameContent(rec) {
			return nil
		}
		if c.retryErrors && existing.Failed() {
			c.logger.Debug("replacing cached error record", "fingerprint", rec.Fingerprint, "tool", rec.Tool)
		} else {
			c.anomalies.Add(1)
			c.logger.Warn("cache anomaly: fingerprint overwritten with different content",
				"fingerprint", rec.Fingerprint,
				"old_status", existing.Status,
				"new_status", rec.Status,
				"old_tool", existing.Tool,
				"new_tool", rec.Tool,
			)
		}
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrStorage, rec.Fingerprint, err)
	}
	return nil
}

// Clear removes every entry. Operators only; the pipeline never calls it.
func (c *ResultCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStorage, err)
	}
	return nil
}

// Stats returns entry count and counters accumulated by this instance.
func (c *ResultCache) Stats(ctx context.Context) (models.CacheStats, error) {
	c.mu.RLock()
	n, err := c.store.Count(ctx)
	c.mu.RUnlock()
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("%w: stats: %w", ErrStorage, err)
	}
	return models.CacheStats{
		Backend:   c.backend,
		Entries:   n,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Anomalies: c.anomalies.Load(),
	}, nil
}

// Close releases the underlying store.
func (c *ResultCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}
