package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pario-ai/benchrun/pkg/models"
)

// ErrCorrupt is returned when the file exists but is not a usable SQLite
// database. Busy, permission and other open errors are not wrapped with it.
var ErrCorrupt = errors.New("cache database is corrupt")

// Store persists answer records in a SQLite database.
type Store struct {
	db *sql.DB
}

const createAnswersTable = `
CREATE TABLE IF NOT EXISTS answer_records (
	fingerprint TEXT PRIMARY KEY,
	answer TEXT NOT NULL,
	tool TEXT NOT NULL,
	status TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
`

// New opens (or creates) the answer store at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createAnswersTable); err != nil {
		db.Close()
		if isCorrupt(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, dbPath, err)
		}
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Store{db: db}, nil
}

// Load returns the record stored under fingerprint, if any.
func (s *Store) Load(ctx context.Context, fingerprint string) (models.AnswerRecord, bool, error) {
	var rec models.AnswerRecord
	var status, kind, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, answer, tool, status, error_kind, error, created_at
		 FROM answer_records WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&rec.Fingerprint, &rec.Answer, &rec.Tool, &status, &kind, &rec.Error, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AnswerRecord{}, false, nil
	}
	if err != nil {
		return models.AnswerRecord{}, false, fmt.Errorf("cache load: %w", err)
	}

	rec.Status = models.Status(status)
	rec.ErrorKind = models.ErrorKind(kind)
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return models.AnswerRecord{}, false, fmt.Errorf("cache load %s: bad created_at: %w", fingerprint, err)
	}
	return rec, true, nil
}

// Save stores rec, replacing any previous record for the same fingerprint.
func (s *Store) Save(ctx context.Context, rec models.AnswerRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO answer_records (fingerprint, answer, tool, status, error_kind, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.Answer, rec.Tool, string(rec.Status), string(rec.ErrorKind), rec.Error,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// Reset removes every record.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM answer_records`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func isCorrupt(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return true
	}
	return false
}
