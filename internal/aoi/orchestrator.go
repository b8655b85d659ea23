// Package aoi runs batch exports of every embedding image intersecting an
// area of interest.
package aoi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/withObsrvr/aef-exporter/internal/coverage"
	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/export"
	"github.com/withObsrvr/aef-exporter/internal/ledger"
	"github.com/withObsrvr/aef-exporter/internal/logging"
	"github.com/withObsrvr/aef-exporter/internal/metrics"
	"github.com/withObsrvr/aef-exporter/internal/storage"
)

// DefaultURIScheme is the scheme of recorded output locations.
const DefaultURIScheme = "s3"

// Options tune a batch run. The zero value continues past row failures,
// never defers, never throttles and writes no manifest.
type Options struct {
	OnError Policy

	// MaxSubmissions caps the remote tasks created per run. Rows beyond the
	// cap are deferred. Zero means no cap.
	MaxSubmissions int

	// SubmitInterval is the minimum spacing between submissions.
	SubmitInterval time.Duration

	// URIScheme prefixes recorded output locations. Defaults to "s3".
	URIScheme string

	// Existing, when set, is consulted for {key}.tif and matching rows are skipped.
	Existing ObjectChecker

	// Manifests, when set, receives a JSON manifest after every run.
	Manifests storage.Store
	Producer  storage.ProducerInfo

	// Catalog, when set, records every finished run.
	Catalog RunRecorder

	Logger   *slog.Logger
	Observer Observer
}

// Orchestrator composes coverage query, export submission and the ledger.
type Orchestrator struct {
	querier  coverage.Querier
	exporter Exporter
	ledger   Ledger
	opts     Options
	log      *slog.Logger
}

// New creates an orchestrator.
func New(q coverage.Querier, e Exporter, l Ledger, opts Options) *Orchestrator {
	if opts.OnError == "" {
		opts.OnError = PolicyContinue
	}
	if opts.URIScheme == "" {
		opts.URIScheme = DefaultURIScheme
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		querier:  q,
		exporter: e,
		ledger:   l,
		opts:     opts,
		log:      log.With("component", "aoi"),
	}
}

// run holds the state of one Run call.
type run struct {
	o       *Orchestrator
	batch   Batch
	log     *slog.Logger
	state   State
	summary *Summary
	limiter *rate.Limiter
	created int
}

// Run exports every row intersecting b.Geometry. The returned summary is
// never nil. Under PolicyAbort the first row failure is returned alongside
// the partial summary; under PolicyContinue row failures are only listed
// in the summary.
func (o *Orchestrator) Run(ctx context.Context, b Batch) (*Summary, error) {
	runID := uuid.NewString()
	r := &run{
		o:     o,
		batch: b,
		log:   logging.BatchLogger(o.log, runID, b.JobName),
		summary: &Summary{
			RunID:     runID,
			JobName:   b.JobName,
			Bucket:    b.Bucket,
			StartedAt: time.Now().UTC(),
		},
	}
	if o.opts.SubmitInterval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(o.opts.SubmitInterval), 1)
	}

	r.transition(StateInitializing)
	err := r.execute(ctx)
	if err != nil {
		r.transition(StateFailed)
	}
	r.finish(ctx)

	return r.summary, err
}

func (r *run) execute(ctx context.Context) error {
	if err := r.batch.validate(); err != nil {
		return err
	}

	// initializing
	if err := r.o.ledger.Initialize(ctx); err != nil {
		r.log.Error("ledger initialization failed", "error", err)
		return fmt.Errorf("initialize ledger: %w", err)
	}

	r.transition(StateQuerying)
	rows, err := r.o.querier.Query(ctx, coverage.Request{
		Geometry: r.batch.Geometry,
		Table:    r.batch.Table,
		Limit:    r.batch.Limit,
	})
	if err != nil {
		r.log.Error("coverage query failed", "table", r.batch.Table.String(), "error", err)
		return fmt.Errorf("query coverage: %w", err)
	}
	r.summary.RowsQueried = len(rows)
	if m := metrics.Get(); m != nil {
		m.AddRowsQueried(r.batch.JobName, len(rows))
	}
	r.log.Info("coverage rows found", "rows", len(rows), "table", r.batch.Table.String())

	if len(rows) == 0 {
		r.transition(StateDone)
		return nil
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			r.log.Warn("batch cancelled", "row", i, "remaining", len(rows)-i)
			return fmt.Errorf("batch %s cancelled at row %d: %w", r.batch.JobName, i, err)
		}

		if r.o.opts.MaxSubmissions > 0 && r.created >= r.o.opts.MaxSubmissions {
			r.summary.Deferred = append(r.summary.Deferred, rows[i:]...)
			if m := metrics.Get(); m != nil {
				m.AddRowsDeferred(r.batch.JobName, len(rows)-i)
			}
			r.log.Warn("submission cap reached, deferring remaining rows",
				"max_submissions", r.o.opts.MaxSubmissions,
				"deferred", len(rows)-i,
			)
			break
		}

		if err := r.processRow(ctx, row); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("batch %s cancelled at row %d: %w", r.batch.JobName, i, ctx.Err())
			}
			if r.o.opts.OnError == PolicyAbort {
				return fmt.Errorf("row %d (%s): %w", i, row.SystemID, err)
			}
		}
	}

	r.transition(StateDone)
	return nil
}

// processRow submits and records one row. A returned error has already
// been added to the summary.
func (r *run) processRow(ctx context.Context, row coverage.Row) error {
	r.transition(StateSubmitting)

	key := OutputKey(r.batch.JobName, row.Year, row.UTMZone, row.SystemID)
	log := r.log.With("image_id", row.SystemID, "key", key)

	if r.o.opts.Existing != nil {
		exists, err := r.o.opts.Existing.Exists(ctx, key+".tif")
		if err != nil {
			return r.fail(log, row, key, "", errs.E(errs.Storage, "check existing output", err))
		}
		if exists {
			r.summary.Skipped = append(r.summary.Skipped, row)
			if m := metrics.Get(); m != nil {
				m.IncRowsSkipped(r.batch.JobName)
			}
			log.Info("output exists, skipping row")
			return nil
		}
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return r.fail(log, row, key, "", err)
		}
	}

	taskID, err := r.o.exporter.ExportImage(ctx, export.ImageRequest{
		AssetID:   row.SystemID,
		Bucket:    r.batch.Bucket,
		KeyPrefix: key,
		Quantize:  true,
	})
	if err != nil {
		return r.fail(log, row, key, "", err)
	}
	r.created++

	r.transition(StateRecording)
	location := Location(r.o.opts.URIScheme, r.batch.Bucket, key)
	// The remote task exists now, so record it even if ctx was cancelled.
	id, err := r.o.ledger.Append(context.WithoutCancel(ctx), ledger.Record{
		TaskID:  taskID,
		JobName: r.batch.JobName,
		Status:  ledger.StatusQueued,
		ImageID: row.SystemID,
		Year:    row.Year,
		S3Path:  location,
	})
	if err != nil {
		return r.fail(log, row, key, taskID, err)
	}

	r.summary.Submitted = append(r.summary.Submitted, Submission{
		Row:      row,
		Key:      key,
		TaskID:   taskID,
		Location: location,
		LedgerID: id,
	})
	if m := metrics.Get(); m != nil {
		m.IncRowsSubmitted(r.batch.JobName)
	}
	log.Info("row exported", "task_id", taskID, "ledger_id", id)
	return nil
}

func (r *run) fail(log *slog.Logger, row coverage.Row, key, orphanTaskID string, err error) error {
	r.summary.Failed = append(r.summary.Failed, RowFailure{
		Row:          row,
		Key:          key,
		Err:          err,
		OrphanTaskID: orphanTaskID,
	})
	if m := metrics.Get(); m != nil {
		m.IncRowsFailed(r.batch.JobName, errs.KindOf(err).String())
	}
	if orphanTaskID != "" {
		log.Error("remote task submitted but not recorded", "task_id", orphanTaskID, "error", err)
	} else {
		log.Error("row failed", "kind", errs.KindOf(err).String(), "error", err)
	}
	return err
}

// transition moves to next, panicking on a transition the table forbids.
func (r *run) transition(next State) {
	from := r.state
	if !from.CanTransitionTo(next) {
		panic(fmt.Sprintf("aoi: invalid state transition %q -> %q", from, next))
	}
	r.state = next
	r.summary.State = next

	r.log.Debug("state transition", "from", string(from), "to", string(next))
	if r.o.opts.Observer != nil {
		r.o.opts.Observer(from, next)
	}
}

func (r *run) finish(ctx context.Context) {
	s := r.summary
	s.FinishedAt = time.Now().UTC()
	if m := metrics.Get(); m != nil {
		m.ObserveBatchDuration(string(s.State), s.FinishedAt.Sub(s.StartedAt).Seconds())
	}

	r.log.Info("batch finished",
		"state", string(s.State),
		"rows_queried", s.RowsQueried,
		"submitted", len(s.Submitted),
		"skipped", len(s.Skipped),
		"deferred", len(s.Deferred),
		"failed", len(s.Failed),
		"duration", s.FinishedAt.Sub(s.StartedAt),
	)

	// A cancelled run is still reported.
	ctx = context.WithoutCancel(ctx)

	if r.o.opts.Manifests != nil {
		uri, err := storage.WriteManifest(ctx, r.o.opts.Manifests, s.Manifest(r.o.opts.Producer))
		if err != nil {
			r.log.Error("manifest write failed", "error", err)
		} else {
			s.ManifestURI = uri
			r.log.Info("manifest written", "uri", uri)
		}
	}

	if r.o.opts.Catalog != nil {
		if err := r.o.opts.Catalog.RecordRun(ctx, s.RunRecord(r.o.opts.Producer.Version)); err != nil {
			r.log.Error("catalog write failed", "error", err)
		}
	}
}
