package aoi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/withObsrvr/aef-exporter/internal/catalog"
	"github.com/withObsrvr/aef-exporter/internal/coverage"
	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/export"
	"github.com/withObsrvr/aef-exporter/internal/ledger"
	"github.com/withObsrvr/aef-exporter/internal/storage"
)

// Exporter submits a single image export.
type Exporter interface {
	ExportImage(ctx context.Context, req export.ImageRequest) (string, error)
}

// Ledger records submissions.
type Ledger interface {
	Initialize(ctx context.Context) error
	Append(ctx context.Context, rec ledger.Record) (int64, error)
}

// ObjectChecker reports whether an export output already exists in the
// destination bucket.
type ObjectChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// RunRecorder records finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec catalog.RunRecord) error
}

// Policy decides what a row failure does to the rest of the batch.
type Policy string

const (
	// PolicyContinue logs the failed row and moves on.
	PolicyContinue Policy = "continue"
	// PolicyAbort stops the batch at the first failed row.
	PolicyAbort Policy = "abort"
)

// ParsePolicy parses "continue" or "abort". Empty means continue.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyContinue:
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	}
	return "", errs.Errorf(errs.InvalidInput, "parse policy", "unknown error policy %q (want continue or abort)", s)
}

// Batch is one AOI export request.
type Batch struct {
	JobName  string
	Bucket   string
	Geometry orb.Polygon
	Table    coverage.TableRef
	Limit    int
}

func (b Batch) validate() error {
	const op = "validate batch"
	switch {
	case b.JobName == "":
		return errs.Errorf(errs.InvalidInput, op, "job name is required")
	case strings.Contains(b.JobName, "/"):
		return errs.Errorf(errs.InvalidInput, op, "job name %q must not contain '/'", b.JobName)
	case b.Bucket == "":
		return errs.Errorf(errs.InvalidInput, op, "bucket is required")
	case len(b.Geometry) == 0:
		return errs.Errorf(errs.InvalidInput, op, "geometry is required")
	case b.Limit < 0:
		return errs.Errorf(errs.InvalidInput, op, "limit must not be negative")
	}
	return nil
}

// OutputKey joins job name, year, zone and the trailing asset segment.
func OutputKey(jobName, year, utmZone, assetID string) string {
	return strings.Join([]string{jobName, year, utmZone, export.TrailingSegment(assetID)}, "/")
}

// Location renders the output URI recorded in the ledger.
func Location(scheme, bucket, key string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucket, key)
}

// Submission is a row that was submitted and recorded.
type Submission struct {
	Row      coverage.Row
	Key      string
	TaskID   string
	Location string
	LedgerID int64
}

// RowFailure is a row that could not be submitted or recorded.
// OrphanTaskID is set when the remote task exists without a ledger record.
type RowFailure struct {
	Row          coverage.Row
	Key          string
	Err          error
	OrphanTaskID string
}

// Summary reports what a batch run did.
type Summary struct {
	RunID       string
	JobName     string
	Bucket      string
	State       State
	RowsQueried int
	Submitted   []Submission
	Skipped     []coverage.Row
	Deferred    []coverage.Row
	Failed      []RowFailure
	StartedAt   time.Time
	FinishedAt  time.Time
	ManifestURI string
}

// Manifest converts the summary to its stored form.
func (s *Summary) Manifest(producer storage.ProducerInfo) *storage.Manifest {
	m := &storage.Manifest{
		RunID:       s.RunID,
		JobName:     s.JobName,
		State:       string(s.State),
		Bucket:      s.Bucket,
		RowsQueried: s.RowsQueried,
		Submitted:   make([]storage.SubmittedInfo, 0, len(s.Submitted)),
		Producer:    producer,
		StartedAt:   s.StartedAt,
		FinishedAt:  s.FinishedAt,
	}
	for _, sub := range s.Submitted {
		m.Submitted = append(m.Submitted, storage.SubmittedInfo{
			ImageID:  sub.Row.SystemID,
			TaskID:   sub.TaskID,
			Location: sub.Location,
			LedgerID: sub.LedgerID,
		})
	}
	for _, row := range s.Skipped {
		m.Skipped = append(m.Skipped, row.SystemID)
	}
	for _, row := range s.Deferred {
		m.Deferred = append(m.Deferred, row.SystemID)
	}
	for _, f := range s.Failed {
		m.Failed = append(m.Failed, storage.FailedInfo{
			ImageID:      f.Row.SystemID,
			Kind:         errs.KindOf(f.Err).String(),
			Error:        f.Err.Error(),
			OrphanTaskID: f.OrphanTaskID,
		})
	}
	return m
}

// RunRecord converts the summary to its catalog form.
func (s *Summary) RunRecord(producerVersion string) catalog.RunRecord {
	orphaned := 0
	for _, f := range s.Failed {
		if f.OrphanTaskID != "" {
			orphaned++
		}
	}
	return catalog.RunRecord{
		RunID:           s.RunID,
		JobName:         s.JobName,
		State:           string(s.State),
		Bucket:          s.Bucket,
		RowsQueried:     s.RowsQueried,
		Submitted:       len(s.Submitted),
		Skipped:         len(s.Skipped),
		Deferred:        len(s.Deferred),
		Failed:          len(s.Failed),
		Orphaned:        orphaned,
		ManifestURI:     s.ManifestURI,
		ProducerVersion: producerVersion,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
	}
}
