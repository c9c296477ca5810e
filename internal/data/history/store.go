package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL keep concurrent CLI invocations from failing on locks.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or replaces one journal entry.
func (s *Store) Record(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("journal entry id must not be empty")
	}
	if entry.Started.IsZero() {
		entry.Started = time.Now().UTC()
	}
	if entry.Finished.IsZero() {
		entry.Finished = time.Now().UTC()
	}

	query := `
INSERT INTO operations (
  id, command, symbol, module, new_name, level, state, files_affected, edits, files, error,
  started_utc, finished_utc
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  state=excluded.state,
  level=excluded.level,
  files_affected=excluded.files_affected,
  edits=excluded.edits,
  files=excluded.files,
  error=excluded.error,
  finished_utc=excluded.finished_utc
`
	return s.withRetry("record operation", func() error {
		_, err := s.db.Exec(
			query,
			entry.ID,
			entry.Command,
			entry.Symbol,
			entry.Module,
			entry.NewName,
			entry.Level,
			entry.State,
			entry.FilesAffected,
			entry.Edits,
			strings.Join(entry.Files, "\n"),
			entry.Error,
			entry.Started.UTC().Format(time.RFC3339Nano),
			entry.Finished.UTC().Format(time.RFC3339Nano),
		)
		return err
	})
}

// List returns the newest entries first. limit <= 0 returns everything.
func (s *Store) List(limit int, since time.Time) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  id, command, symbol, module, new_name, level, state, files_affected, edits, files, error,
  started_utc, finished_utc
FROM operations
`
	args := make([]any, 0, 2)
	if !since.IsZero() {
		base += " WHERE started_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY started_utc DESC, id ASC"
	if limit > 0 {
		base += " LIMIT ?"
		args = append(args, limit)
	}

	var rows *sql.Rows
	err := s.withRetry("list operations", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			filesRaw    string
			startedRaw  string
			finishedRaw string
			entry       Entry
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Command,
			&entry.Symbol,
			&entry.Module,
			&entry.NewName,
			&entry.Level,
			&entry.State,
			&entry.FilesAffected,
			&entry.Edits,
			&filesRaw,
			&entry.Error,
			&startedRaw,
			&finishedRaw,
		); err != nil {
			return nil, fmt.Errorf("scan operation row: %w", err)
		}
		if filesRaw != "" {
			entry.Files = strings.Split(filesRaw, "\n")
		}
		if entry.Started, err = time.Parse(time.RFC3339Nano, startedRaw); err != nil {
			return nil, fmt.Errorf("parse start timestamp %q: %w", startedRaw, err)
		}
		if entry.Finished, err = time.Parse(time.RFC3339Nano, finishedRaw); err != nil {
			return nil, fmt.Errorf("parse finish timestamp %q: %w", finishedRaw, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation rows: %w", err)
	}

	return entries, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
