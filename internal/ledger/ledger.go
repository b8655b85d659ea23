// Package ledger is the append-only SQLite record of export submissions.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/metrics"
)

// Status of an export task. Only Queued is written here; the others are
// reserved for a later reconciliation pass.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// Record is one row of the exports table. EECUSeconds and RuntimeSeconds
// stay nil until a task's completion is reconciled.
type Record struct {
	ID             int64    `parquet:"id"`
	TaskID         string   `parquet:"task_id"`
	JobName        string   `parquet:"job_name"`
	EECUSeconds    *float64 `parquet:"eecu_seconds,optional"`
	RuntimeSeconds *float64 `parquet:"runtime_seconds,optional"`
	Status         Status   `parquet:"status"`
	ImageID        string   `parquet:"image_id"`
	Year           string   `parquet:"year"`
	S3Path         string   `parquet:"s3_path"`
}

const schema = `
CREATE TABLE IF NOT EXISTS exports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id VARCHAR,
	job_name VARCHAR,
	eecu_seconds FLOAT,
	runtime_seconds FLOAT,
	status VARCHAR,
	image_id VARCHAR,
	year INTEGER,
	s3_path VARCHAR
);
`

// busyTimeoutMS bounds how long a writer waits on another process's lock.
const busyTimeoutMS = 5000

// Ledger wraps the SQLite database holding the exports table.
type Ledger struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// Open opens (creating if needed) the ledger database at path. Use
// ":memory:" for a private in-memory ledger.
func Open(path string) (*Ledger, error) {
	const op = "open ledger"

	if path == "" {
		return nil, errs.Errorf(errs.InvalidInput, op, "ledger path is empty")
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errs.E(errs.Storage, op, err)
	}

	// One connection keeps :memory: databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errs.E(errs.Storage, op, fmt.Errorf("open %s: %w", path, err))
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = FULL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errs.E(errs.Storage, op, fmt.Errorf("%s: %w", pragma, err))
		}
	}

	return &Ledger{
		db:   db,
		path: path,
		log:  slog.With("component", "ledger"),
	}, nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("file:%s%s_busy_timeout=%d&_sync=FULL", path, sep, busyTimeoutMS)
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the path the ledger was opened with.
func (l *Ledger) Path() string {
	return l.path
}

// Initialize creates the exports table if it does not exist.
func (l *Ledger) Initialize(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return errs.E(errs.Storage, "initialize ledger", fmt.Errorf("create exports table: %w", err))
	}
	return nil
}

// Append inserts rec and returns its id. The insert is committed before
// Append returns.
func (l *Ledger) Append(ctx context.Context, rec Record) (int64, error) {
	const op = "append ledger record"

	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if !rec.Status.Valid() {
		return 0, errs.Errorf(errs.InvalidInput, op, "unknown status %q", rec.Status)
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO exports (task_id, job_name, eecu_seconds, runtime_seconds, status, image_id, year, s3_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.JobName, nullFloat(rec.EECUSeconds), nullFloat(rec.RuntimeSeconds),
		string(rec.Status), rec.ImageID, rec.Year, rec.S3Path)
	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncLedgerErrors()
		}
		return 0, errs.E(errs.Storage, op, fmt.Errorf("insert %s: %w", rec.ImageID, err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.E(errs.Storage, op, fmt.Errorf("read inserted id: %w", err))
	}

	if m := metrics.Get(); m != nil {
		m.IncLedgerAppends()
	}
	l.log.Debug("ledger record appended", "id", id, "task_id", rec.TaskID, "image_id", rec.ImageID)
	return id, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
