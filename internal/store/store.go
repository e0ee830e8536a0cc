// Package store keeps a SQLite history of playlist builds and image refresh
// attempts. Nothing in the display path reads it; it exists for status and
// troubleshooting tooling.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Build records one playlist build.
type Build struct {
	Generation string
	Profile    string
	URL        string
	BuiltAt    time.Time
	Items      int
	Accepted   int
	Invalid    int
	Disabled   int
	Diagnostic string // "No list" message, empty for a normal build
	Took       time.Duration
}

// Attempt records one image refresh attempt.
type Attempt struct {
	Generation string
	Item       string // friendly name
	Resource   string
	At         time.Time
	OK         bool
	Status     int    // HTTP status of a failed fetch, 0 otherwise
	Message    string // status message set on the item, empty on success
	ImageType  string
	Bytes      int
	Width      int
	Height     int
	Took       time.Duration
	NextAt     time.Time
}

// Resource summarizes the refresh history of one resource URL.
type Resource struct {
	Resource    string
	Item        string
	Successes   int
	Failures    int
	Consecutive int // failures since the last success
	LastOK      time.Time
	LastError   time.Time
	LastMessage string
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		generation TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		url TEXT,
		built_at DATETIME NOT NULL,
		items INTEGER NOT NULL,
		accepted INTEGER NOT NULL,
		invalid INTEGER NOT NULL,
		disabled INTEGER NOT NULL,
		diagnostic TEXT,
		took_ms INTEGER
	);

	CREATE TABLE IF NOT EXISTS refreshes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		generation TEXT,
		item TEXT NOT NULL,
		resource TEXT NOT NULL,
		at DATETIME NOT NULL,
		ok INTEGER NOT NULL,
		status INTEGER,
		message TEXT,
		image_type TEXT,
		bytes INTEGER,
		width INTEGER,
		height INTEGER,
		took_ms INTEGER,
		next_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS resources (
		resource TEXT PRIMARY KEY,
		item TEXT NOT NULL,
		successes INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		consecutive INTEGER DEFAULT 0,
		last_ok_at DATETIME,
		last_error_at DATETIME,
		last_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_refreshes_at ON refreshes(at DESC);
	CREATE INDEX IF NOT EXISTS idx_refreshes_resource ON refreshes(resource);
	CREATE INDEX IF NOT EXISTS idx_builds_built ON builds(built_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordBuild stores a playlist build. A repeated generation replaces the
// earlier row.
func (s *Store) RecordBuild(b Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO builds (
			generation, profile, url, built_at, items, accepted, invalid,
			disabled, diagnostic, took_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.Generation, b.Profile, b.URL, b.BuiltAt, b.Items, b.Accepted,
		b.Invalid, b.Disabled, b.Diagnostic, b.Took.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// RecordRefresh appends an attempt and folds it into the resource summary.
// Thread-safe: acquires write lock.
func (s *Store) RecordRefresh(a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var nextAt any
	if !a.NextAt.IsZero() {
		nextAt = a.NextAt
	}

	_, err = tx.Exec(`
		INSERT INTO refreshes (
			generation, item, resource, at, ok, status, message, image_type,
			bytes, width, height, took_ms, next_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.Generation, a.Item, a.Resource, a.At, boolToInt(a.OK), a.Status,
		a.Message, a.ImageType, a.Bytes, a.Width, a.Height,
		a.Took.Milliseconds(), nextAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh: %w", err)
	}

	if a.OK {
		_, err = tx.Exec(`
			INSERT INTO resources (resource, item, successes, last_ok_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(resource) DO UPDATE SET
				item = excluded.item,
				successes = successes + 1,
				consecutive = 0,
				last_ok_at = excluded.last_ok_at
		`, a.Resource, a.Item, a.At)
	} else {
		_, err = tx.Exec(`
			INSERT INTO resources (resource, item, failures, consecutive, last_error_at, last_message)
			VALUES (?, ?, 1, 1, ?, ?)
			ON CONFLICT(resource) DO UPDATE SET
				item = excluded.item,
				failures = failures + 1,
				consecutive = consecutive + 1,
				last_error_at = excluded.last_error_at,
				last_message = excluded.last_message
		`, a.Resource, a.Item, a.At, a.Message)
	}
	if err != nil {
		return fmt.Errorf("update resource: %w", err)
	}

	return tx.Commit()
}

// Recent returns the latest refresh attempts, newest first.
// Thread-safe: acquires read lock.
func (s *Store) Recent(limit int) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT generation, item, resource, at, ok, status, message, image_type,
			bytes, width, height, took_ms, next_at
		FROM refreshes
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var okInt int
		var tookMs int64
		var nextAt sql.NullTime
		var generation, message, imageType sql.NullString
		err := rows.Scan(
			&generation,
			&a.Item,
			&a.Resource,
			&a.At,
			&okInt,
			&a.Status,
			&message,
			&imageType,
			&a.Bytes,
			&a.Width,
			&a.Height,
			&tookMs,
			&nextAt,
		)
		if err != nil {
			return nil, err
		}
		a.Generation = generation.String
		a.Message = message.String
		a.ImageType = imageType.String
		a.OK = okInt != 0
		a.Took = time.Duration(tookMs) * time.Millisecond
		if nextAt.Valid {
			a.NextAt = nextAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Resources returns the per-resource summary, worst first: most consecutive
// failures, then by name.
// Thread-safe: acquires read lock.
func (s *Store) Resources() ([]Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT resource, item, successes, failures, consecutive,
			last_ok_at, last_error_at, last_message
		FROM resources
		ORDER BY consecutive DESC, item ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var r Resource
		var lastOK, lastErr sql.NullTime
		var lastMsg sql.NullString
		if err := rows.Scan(
			&r.Resource,
			&r.Item,
			&r.Successes,
			&r.Failures,
			&r.Consecutive,
			&lastOK,
			&lastErr,
			&lastMsg,
		); err != nil {
			return nil, err
		}
		if lastOK.Valid {
			r.LastOK = lastOK.Time
		}
		if lastErr.Valid {
			r.LastError = lastErr.Time
		}
		r.LastMessage = lastMsg.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Builds returns the latest playlist builds, newest first.
// Thread-safe: acquires read lock.
func (s *Store) Builds(limit int) ([]Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT generation, profile, url, built_at, items, accepted, invalid,
			disabled, diagnostic, took_ms
		FROM builds
		ORDER BY built_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var b Build
		var url, diagnostic sql.NullString
		var tookMs int64
		if err := rows.Scan(
			&b.Generation,
			&b.Profile,
			&url,
			&b.BuiltAt,
			&b.Items,
			&b.Accepted,
			&b.Invalid,
			&b.Disabled,
			&diagnostic,
			&tookMs,
		); err != nil {
			return nil, err
		}
		b.URL = url.String
		b.Diagnostic = diagnostic.String
		b.Took = time.Duration(tookMs) * time.Millisecond
		out = append(out, b)
	}
	return out, rows.Err()
}

// Prune deletes refresh attempts older than before and returns how many
// were removed. Resource summaries are kept.
func (s *Store) Prune(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM refreshes WHERE at < ?", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
