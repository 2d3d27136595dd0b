// Package history keeps a sqlite journal of conversions.
//
// The journal is written by the CLI after each run. It only records what
// happened; nothing in the export pipeline reads it.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const currentSchemaVersion = 1

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is one conversion.
type Entry struct {
	ID       string
	Model    string
	Output   string
	Mode     string
	Location string
	Status   Status
	Error    string
	Files    int
	Size     int64
	Started  time.Time
	Duration time.Duration
}

// Begin starts an entry for a conversion of model into output.
func Begin(model, output, mode string) *Entry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Entry{ID: id.String(), Model: model, Output: output, Mode: mode, Started: time.Now()}
}

// Finish completes the entry with the outcome of the run.
func (e *Entry) Finish(location string, files int, size int64, err error) {
	e.Location = location
	e.Files = files
	e.Size = size
	e.Duration = time.Since(e.Started)
	if err != nil {
		e.Status = StatusFailed
		e.Error = err.Error()
	} else {
		e.Status = StatusSucceeded
	}
}

// Journal is the conversion journal. sqlite serializes writers, so a
// Journal may be shared between goroutines.
type Journal struct {
	conn *sql.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize journal: %w", err)
	}

	return j, nil
}

func (j *Journal) Close() error {
	_, _ = j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return j.conn.Close()
}

func (j *Journal) init() error {
	var version int
	if err := j.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	_, err := j.conn.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		files INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	PRAGMA user_version = %d;
	`, currentSchemaVersion))
	return err
}

// Record stores e, replacing an entry with the same ID.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		return errors.New("history: entry has no id")
	}

	_, err := j.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, model, output, mode, location, status, error, files, size, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Model, e.Output, e.Mode, e.Location, string(e.Status), e.Error, e.Files, e.Size,
		e.Started.UnixMilli(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit of zero or less
// returns every entry.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, model, output, mode, location, status, error, files, size, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var status string
		var started, duration int64
		if err := rows.Scan(&e.ID, &e.Model, &e.Output, &e.Mode, &e.Location, &status, &e.Error, &e.Files, &e.Size, &started, &duration); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.Status = Status(status)
		e.Started = time.UnixMilli(started)
		e.Duration = time.Duration(duration) * time.Millisecond
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
