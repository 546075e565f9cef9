// Package bolt stores answer records in a BoltDB file.
//
// Each record is JSON-encoded under its fingerprint in a single bucket.
// Writes go through bbolt's serialized update transactions, so a reader
// never observes a partially written record.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pario-ai/benchrun/pkg/models"
)

// bucketName is the BoltDB bucket holding answer records
const bucketName = "answers"

// ErrLocked is returned when another process holds the database file.
var ErrLocked = errors.New("cache database is locked by another process")

// ErrCorrupt is returned when the file is not a readable BoltDB database.
var ErrCorrupt = errors.New("cache database is corrupt")

// Store persists answer records in BoltDB
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the BoltDB file at path
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		if errors.Is(err, bbolt.ErrInvalid) || errors.Is(err, bbolt.ErrVersionMismatch) || errors.Is(err, bbolt.ErrChecksum) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
		}
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Load retrieves the record for fingerprint
func (s *Store) Load(_ context.Context, fingerprint string) (models.AnswerRecord, bool, error) {
	var rec models.AnswerRecord
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(fingerprint))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return models.AnswerRecord{}, false, fmt.Errorf("failed to load cache entry: %w", err)
	}

	return rec, found, nil
}

// Save stores rec under its fingerprint, replacing any previous value
func (s *Store) Save(_ context.Context, rec models.AnswerRecord) error {
	rec.CreatedAt = rec.CreatedAt.UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(rec.Fingerprint), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}

	return nil
}

// Count returns the number of stored records
func (s *Store) Count(_ context.Context) (int64, error) {
	var count int

	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}

	return int64(count), nil
}

// Reset removes all records by recreating the bucket
func (s *Store) Reset(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}
