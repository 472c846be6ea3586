package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var errClosed = errors.New("checkpoint store is closed")

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  atomic.Bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite checkpoint store, creating the
// database's parent directory if needed
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS uploads (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		source_path TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	);

	CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(status);
	`

	_, err := s.db.Exec(query)
	return err
}

// GetTask retrieves a task record, or nil when the key was never recorded
func (s *SQLiteStore) GetTask(bucket, key string) (*TaskRecord, error) {
	if s.closed.Load() {
		return nil, errClosed
	}

	var result *TaskRecord
	err := s.retryOnBusy(func() error {
		var err error
		result, err = s.getTaskInternal(bucket, key)
		return err
	})
	return result, err
}

func (s *SQLiteStore) getTaskInternal(bucket, key string) (*TaskRecord, error) {
	query := `
	SELECT bucket, key, source_path, size, mod_time, status, attempts, last_error, updated_at
	FROM uploads WHERE bucket = ? AND key = ?
	`

	record, err := scanRecord(s.db.QueryRow(query, bucket, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// SaveTask upserts a record. Attempts are accumulated onto the stored value.
func (s *SQLiteStore) SaveTask(record *TaskRecord) error {
	if s.closed.Load() {
		return errClosed
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveTaskWithTransaction(record)
	})
}

func (s *SQLiteStore) saveTaskWithTransaction(record *TaskRecord) error {
	record.UpdatedAt = time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // This will be ignored if Commit() succeeds

	query := `
	INSERT INTO uploads
	(bucket, key, source_path, size, mod_time, status, attempts, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(bucket, key) DO UPDATE SET
		source_path = excluded.source_path,
		size = excluded.size,
		mod_time = excluded.mod_time,
		status = excluded.status,
		attempts = uploads.attempts + excluded.attempts,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err = tx.Exec(query,
		record.Bucket,
		record.Key,
		record.SourcePath,
		record.Size,
		record.ModTime.UnixNano(),
		string(record.Status),
		record.Attempts,
		record.LastError,
		record.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}

	return tx.Commit()
}

// retryOnBusy reruns op with exponential backoff while SQLite reports the
// database as busy or locked
func (s *SQLiteStore) retryOnBusy(op func() error) error {
	const maxAttempts = 10
	delay := 50 * time.Millisecond

	err := op()
	for attempt := 1; attempt < maxAttempts && isBusy(err); attempt++ {
		time.Sleep(delay)
		delay *= 2
		err = op()
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// ListUnmovedTasks returns uploads whose local file was not relocated
func (s *SQLiteStore) ListUnmovedTasks() ([]*TaskRecord, error) {
	return s.listTasksByStatus(StatusUploaded)
}

// ListFailedTasks returns all failed uploads
func (s *SQLiteStore) ListFailedTasks() ([]*TaskRecord, error) {
	return s.listTasksByStatus(StatusFailed)
}

func (s *SQLiteStore) listTasksByStatus(status TaskStatus) ([]*TaskRecord, error) {
	if s.closed.Load() {
		return nil, errClosed
	}

	query := `
	SELECT bucket, key, source_path, size, mod_time, status, attempts, last_error, updated_at
	FROM uploads WHERE status = ?
	ORDER BY updated_at ASC
	`

	rows, err := s.db.Query(query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TaskRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*TaskRecord, error) {
	var record TaskRecord
	var status string
	var lastError sql.NullString
	var modTime, updatedAt int64

	err := row.Scan(
		&record.Bucket,
		&record.Key,
		&record.SourcePath,
		&record.Size,
		&modTime,
		&status,
		&record.Attempts,
		&lastError,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = TaskStatus(status)
	record.ModTime = time.Unix(0, modTime)
	record.UpdatedAt = time.Unix(0, updatedAt)
	if lastError.Valid {
		record.LastError = lastError.String
	}

	return &record, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
