// Package journal keeps a local history of sync runs in SQLite so past
// runs can be inspected after their reports rotate away. Journal writes
// are best-effort: a failure here never fails a sync.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftsync/drift/internal/sync"
)

// DB is the run-history database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the journal database at
// $XDG_STATE_HOME/drift/journal.db, falling back to ~/.local/state.
func Open() (*DB, error) {
	dbPath, err := journalPath()
	if err != nil {
		return nil, err
	}
	return OpenAt(dbPath)
}

// OpenAt opens (or creates) the journal database at path.
func OpenAt(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}

	j := &DB{db: db, path: path}
	if err := j.init(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *DB) init() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			remote      TEXT NOT NULL,
			local       TEXT NOT NULL,
			total_files INTEGER NOT NULL,
			successful  INTEGER NOT NULL,
			failed      INTEGER NOT NULL,
			bytes       INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS transfers (
			run_id     TEXT NOT NULL,
			path       TEXT NOT NULL,
			size       INTEGER NOT NULL,
			downloaded INTEGER NOT NULL,
			checksum   TEXT NOT NULL,
			status     TEXT NOT NULL,
			changes    INTEGER NOT NULL,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS transfers_run ON transfers (run_id);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// RecordRun persists one run report with all its per-file outcomes in a
// single transaction.
func (j *DB) RecordRun(remotePath, localPath string, report sync.Report) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO runs (id, started_at, remote, local, total_files, successful, failed, bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		report.Summary.RunID, time.Now().Unix(), remotePath, localPath,
		report.Summary.TotalFiles, report.Summary.Successful,
		report.Summary.Failed, report.Summary.TotalBytesTransferred,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO transfers (run_id, path, size, downloaded, checksum, status, changes, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Details {
		if _, err := stmt.Exec(report.Summary.RunID, o.Path, o.Size, o.Downloaded, o.Checksum, o.Status, o.Changes, o.Error); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert transfer %s: %w", o.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Run is one row of run history.
type Run struct {
	ID         string
	StartedAt  time.Time
	Remote     string
	Local      string
	TotalFiles int
	Successful int
	Failed     int
	Bytes      int64
}

// Recent returns up to n runs, newest first.
func (j *DB) Recent(n int) ([]Run, error) {
	rows, err := j.db.Query(
		"SELECT id, started_at, remote, local, total_files, successful, failed, bytes FROM runs ORDER BY started_at DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &started, &r.Remote, &r.Local, &r.TotalFiles, &r.Successful, &r.Failed, &r.Bytes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (j *DB) Close() error {
	return j.db.Close()
}

// Path returns the journal database file path.
func (j *DB) Path() string { return j.path }

func journalPath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "drift", "journal.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".local", "state", "drift", "journal.db"), nil
}
