// Package catalog records finished batch runs in a shared PostgreSQL catalog.
package catalog

import (
	"context"
	"time"
)

type Config struct {
	PostgresDSN string
}

// RunRecord summarizes one AOI batch run.
type RunRecord struct {
	RunID           string
	JobName         string
	State           string
	Bucket          string
	RowsQueried     int
	Submitted       int
	Skipped         int
	Deferred        int
	Failed          int
	Orphaned        int
	ManifestURI     string
	ProducerVersion string
	StartedAt       time.Time
	FinishedAt      time.Time
}

type Writer interface {
	RecordRun(ctx context.Context, rec RunRecord) error
	Close()
}

// NewWriter returns a PostgreSQL writer, or a no-op writer when no DSN is set.
func NewWriter(ctx context.Context, cfg Config) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return noopWriter{}, nil
	}
	return NewPostgresWriter(ctx, cfg)
}

type noopWriter struct{}

func (noopWriter) RecordRun(_ context.Context, _ RunRecord) error { return nil }
func (noopWriter) Close()                                         {}
