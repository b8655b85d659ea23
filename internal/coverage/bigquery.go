package coverage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

// BigQueryQuerier reads coverage rows from a table produced by the coverage
// export. The table holds one row per image with its footprint in `geo`.
type BigQueryQuerier struct {
	client  *bigquery.Client
	project string
	log     *slog.Logger
}

// NewBigQueryQuerier connects to the warehouse billed to projectID.
func NewBigQueryQuerier(ctx context.Context, projectID string, opts ...option.ClientOption) (*BigQueryQuerier, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &BigQueryQuerier{
		client:  client,
		project: projectID,
		log:     slog.With("component", "coverage"),
	}, nil
}

// Query runs the intersection query and returns every row.
func (q *BigQueryQuerier) Query(ctx context.Context, req Request) ([]Row, error) {
	const op = "query coverage"

	if req.Table.Project == "" {
		req.Table.Project = q.project
	}
	sql, err := BuildSQL(req.Table, req.Limit)
	if err != nil {
		return nil, errs.E(errs.InvalidInput, op, err)
	}
	aoi, err := req.GeoJSON()
	if err != nil {
		return nil, errs.E(errs.InvalidInput, op, err)
	}

	query := q.client.Query(sql)
	query.Parameters = []bigquery.QueryParameter{{Name: "aoi", Value: aoi}}
	if req.Limit > 0 {
		query.Parameters = append(query.Parameters, bigquery.QueryParameter{Name: "limit", Value: int64(req.Limit)})
	}

	it, err := query.Read(ctx)
	if err != nil {
		return nil, errs.E(errs.RemoteSubmission, op, fmt.Errorf("run query on %s: %w", req.Table, err))
	}

	var rows []Row
	for {
		var r Row
		err := it.Next(&r)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errs.E(errs.RemoteSubmission, op, fmt.Errorf("read rows from %s: %w", req.Table, err))
		}
		rows = append(rows, r)
	}

	q.log.Info("coverage query complete", "table", req.Table.String(), "rows", len(rows), "limit", req.Limit)
	return rows, nil
}

// Close releases the warehouse client.
func (q *BigQueryQuerier) Close() error {
	return q.client.Close()
}

// BuildSQL renders the parameterized intersection query for table. The
// geometry is bound as @aoi and, when limit > 0, the row limit as @limit.
func BuildSQL(table TableRef, limit int) (string, error) {
	if err := table.validate(); err != nil {
		return "", err
	}

	sql := fmt.Sprintf(`SELECT
  system_id,
  CAST(EXTRACT(YEAR FROM DATE(start_date)) AS STRING) AS year,
  CAST(UTM_ZONE AS STRING) AS utm_zone
FROM `+"`%s`"+`
WHERE ST_INTERSECTS(geo, ST_GEOGFROMGEOJSON(@aoi, make_valid => TRUE))
ORDER BY system_id`, table)

	if limit > 0 {
		sql += "\nLIMIT @limit"
	}
	return sql, nil
}

var _ Querier = (*BigQueryQuerier)(nil)
