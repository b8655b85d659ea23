package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

// Filter narrows List and Count. Zero values match everything; Limit <= 0
// means no limit.
type Filter struct {
	JobName string
	Status  Status
	Limit   int
}

func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.JobName != "" {
		clauses = append(clauses, "job_name = ?")
		args = append(args, f.JobName)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns matching records in insertion order.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Record, error) {
	const op = "list ledger records"

	where, args := f.where()
	q := `SELECT id, task_id, job_name, eecu_seconds, runtime_seconds, status, image_id, year, s3_path
	      FROM exports` + where + ` ORDER BY id`
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errs.E(errs.Storage, op, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec           Record
			status        string
			eecu, runtime sql.NullFloat64
			taskID, job   sql.NullString
			imageID, year sql.NullString
			s3Path        sql.NullString
		)
		if err := rows.Scan(&rec.ID, &taskID, &job, &eecu, &runtime, &status, &imageID, &year, &s3Path); err != nil {
			return nil, errs.E(errs.Storage, op, fmt.Errorf("scan row: %w", err))
		}
		rec.TaskID = taskID.String
		rec.JobName = job.String
		rec.Status = Status(status)
		rec.ImageID = imageID.String
		rec.Year = year.String
		rec.S3Path = s3Path.String
		if eecu.Valid {
			rec.EECUSeconds = &eecu.Float64
		}
		if runtime.Valid {
			rec.RuntimeSeconds = &runtime.Float64
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.E(errs.Storage, op, err)
	}
	return records, nil
}

// Count returns the number of matching records. Limit is ignored.
func (l *Ledger) Count(ctx context.Context, f Filter) (int64, error) {
	where, args := f.where()

	var n int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exports`+where, args...).Scan(&n); err != nil {
		return 0, errs.E(errs.Storage, "count ledger records", err)
	}
	return n, nil
}
