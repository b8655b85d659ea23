// Package coverage finds the embedding images that intersect an area of interest.
package coverage

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Row is one candidate export unit.
type Row struct {
	SystemID string `bigquery:"system_id"`
	Year     string `bigquery:"year"`
	UTMZone  string `bigquery:"utm_zone"`
}

// TableRef identifies a warehouse table. An empty Project means the
// querier's own project.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

func (t TableRef) String() string {
	if t.Project == "" {
		return t.Dataset + "." + t.Table
	}
	return fmt.Sprintf("%s.%s.%s", t.Project, t.Dataset, t.Table)
}

func (t TableRef) validate() error {
	if t.Dataset == "" || t.Table == "" {
		return fmt.Errorf("dataset and table are required")
	}
	for _, part := range []string{t.Project, t.Dataset, t.Table} {
		if strings.ContainsAny(part, "`.; \t\n") {
			return fmt.Errorf("invalid table reference component %q", part)
		}
	}
	return nil
}

// Request selects the rows intersecting Geometry. Limit <= 0 means no limit.
type Request struct {
	Geometry orb.Polygon
	Table    TableRef
	Limit    int
}

// GeoJSON renders the request geometry as a GeoJSON geometry object.
func (r Request) GeoJSON() (string, error) {
	b, err := geojson.NewGeometry(r.Geometry).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal geometry: %w", err)
	}
	return string(b), nil
}

// Querier returns the rows intersecting a region. Results are stable within
// one call only; repeated calls against a live table may differ.
type Querier interface {
	Query(ctx context.Context, req Request) ([]Row, error)
}
