package cache

import (
	"context"
	"sync"

	"github.com/pario-ai/benchrun/pkg/models"
)

// MemoryStore is a process-local Store. Used when the durable store cannot be
// opened, and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.AnswerRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.AnswerRecord)}
}

func (m *MemoryStore) Load(_ context.Context, fingerprint string) (models.AnswerRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[fingerprint]
	return rec, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, rec models.AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Fingerprint] = rec
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

func (m *MemoryStore) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]models.AnswerRecord)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
