// Package store provides the local SQLite repository for courses, tasks and
// sync history.
//
// The database is an embedded SQLite file opened through ncruces/go-sqlite3
// in WAL mode, so the HTTP handlers and the sync engine can read while the
// other writes. Every operation is a single statement or a single
// transaction, which makes each record update atomic.
//
// Architecture:
//   - Database file: taskion.db (configurable)
//   - Tables: courses, tasks, sync_runs
//   - Sync bookkeeping: sync_state and last_synced_at on every record
//
// Local mutations (insert, update, archive, unarchive) always set the record
// back to pending. Only MarkSynced sets it to synced.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/taskion/taskion/internal/model"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection at the specified path.
//
// Pragmas are passed in the DSN so that every pooled connection gets them.
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("taskion.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(wal)")
	params.Add("_pragma", "synchronous(normal)")
	params.Set("_txlock", "immediate")
	connStr := "file:" + filepath.ToSlash(path) + "?" + params.Encode()

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("database is closed")
	}
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		semester TEXT NOT NULL DEFAULT '',
		day_of_week TEXT NOT NULL DEFAULT '',
		period INTEGER NOT NULL DEFAULT 0,
		room TEXT,
		instructor TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		sync_state TEXT NOT NULL DEFAULT 'pending',
		last_synced_at TEXT
	);

	-- course_id is not a foreign key: a task may arrive before its course
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		completed_at TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		sync_state TEXT NOT NULL DEFAULT 'pending',
		last_synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		pushed INTEGER NOT NULL DEFAULT 0,
		pulled INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_courses_archived ON courses(archived, updated_at);
	CREATE INDEX IF NOT EXISTS idx_courses_sync_state ON courses(sync_state);
	CREATE INDEX IF NOT EXISTS idx_tasks_archived ON tasks(archived, updated_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_sync_state ON tasks(sync_state);
	CREATE INDEX IF NOT EXISTS idx_tasks_course ON tasks(course_id);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

func (db *DB) timestamp() string {
	return model.FormatTimestamp(db.now())
}

// tableFor maps a kind to its table. Kinds are a closed set, so the
// result is safe to splice into SQL.
func tableFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindCourse:
		return "courses", nil
	case model.KindTask:
		return "tasks", nil
	}
	return "", fmt.Errorf("unknown record kind %q", kind)
}

// inTx runs fn inside a transaction, committing on success.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stateOrPending(s model.SyncState) string {
	if s == "" {
		return string(model.SyncPending)
	}
	return string(s)
}
