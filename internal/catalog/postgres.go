package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresWriter connects to the catalog and ensures its schema exists.
func NewPostgresWriter(ctx context.Context, cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// One writer per batch run; keep the pool small.
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w := &PostgresWriter{
		pool: pool,
		log:  slog.With("component", "catalog"),
	}
	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

// RecordRun upserts rec keyed by run id.
func (w *PostgresWriter) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO _meta_export_runs (
			run_id, job_name, state, bucket, rows_queried, submitted, skipped,
			deferred, failed, orphaned, manifest_uri, producer_version,
			started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14)
		ON CONFLICT (run_id)
		DO UPDATE SET
			state = EXCLUDED.state,
			rows_queried = EXCLUDED.rows_queried,
			submitted = EXCLUDED.submitted,
			skipped = EXCLUDED.skipped,
			deferred = EXCLUDED.deferred,
			failed = EXCLUDED.failed,
			orphaned = EXCLUDED.orphaned,
			manifest_uri = EXCLUDED.manifest_uri,
			finished_at = EXCLUDED.finished_at
	`

	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		rec.JobName,
		rec.State,
		rec.Bucket,
		rec.RowsQueried,
		rec.Submitted,
		rec.Skipped,
		rec.Deferred,
		rec.Failed,
		rec.Orphaned,
		rec.ManifestURI,
		rec.ProducerVersion,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", rec.RunID, err)
	}

	w.log.Debug("run recorded", "run_id", rec.RunID, "job_name", rec.JobName, "state", rec.State)
	return nil
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() {
	w.pool.Close()
}

var _ Writer = (*PostgresWriter)(nil)
