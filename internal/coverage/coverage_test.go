package coverage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

const squarePolygon = `{"type":"Polygon","coordinates":[[[-122.5,37.7],[-122.3,37.7],[-122.3,37.9],[-122.5,37.9],[-122.5,37.7]]]}`

func TestParseGeometryPolygon(t *testing.T) {
	poly, err := ParseGeometry([]byte(squarePolygon))
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if len(poly) != 1 || len(poly[0]) != 5 {
		t.Fatalf("unexpected polygon shape: %v", poly)
	}
	if poly[0][0] != (orb.Point{-122.5, 37.7}) {
		t.Errorf("first point = %v", poly[0][0])
	}
}

func TestParseGeometryFeature(t *testing.T) {
	feature := `{"type":"Feature","properties":{"name":"bay"},"geometry":` + squarePolygon + `}`
	poly, err := ParseGeometry([]byte(feature))
	if err != nil {
		t.Fatalf("ParseGeometry failed: %v", err)
	}
	if len(poly[0]) != 5 {
		t.Errorf("expected 5 positions, got %d", len(poly[0]))
	}
}

func TestParseGeometryRejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{{`,
		"point":            `{"type":"Point","coordinates":[1,2]}`,
		"feature of point": `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`,
		"collection":       `{"type":"FeatureCollection","features":[]}`,
		"open ring":        `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1]]]}`,
		"short ring":       `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`,
		"off the globe":    `{"type":"Polygon","coordinates":[[[0,0],[200,0],[200,1],[0,0]]]}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseGeometry([]byte(input))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errs.Is(err, errs.InvalidInput) {
				t.Errorf("expected InvalidInput, got %v", err)
			}
		})
	}
}

func TestLoadGeometryCompressed(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll([]byte(squarePolygon), nil)
	enc.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "aoi.geojson.zst")
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		t.Fatal(err)
	}

	poly, err := LoadGeometry(path)
	if err != nil {
		t.Fatalf("LoadGeometry failed: %v", err)
	}
	if len(poly[0]) != 5 {
		t.Errorf("expected 5 positions, got %d", len(poly[0]))
	}
}

func TestLoadGeometryMissingFile(t *testing.T) {
	_, err := LoadGeometry(filepath.Join(t.TempDir(), "missing.geojson"))
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestBuildSQL(t *testing.T) {
	table := TableRef{Project: "proj", Dataset: "aef", Table: "coverage"}

	sql, err := BuildSQL(table, 0)
	if err != nil {
		t.Fatalf("BuildSQL failed: %v", err)
	}
	for _, want := range []string{"`proj.aef.coverage`", "ST_GEOGFROMGEOJSON(@aoi", "ORDER BY system_id", "AS utm_zone"} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in:\n%s", want, sql)
		}
	}
	if strings.Contains(sql, "LIMIT") {
		t.Error("no limit requested")
	}

	sql, err = BuildSQL(table, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(sql, "LIMIT @limit") {
		t.Errorf("expected limit clause:\n%s", sql)
	}
}

func TestBuildSQLRejectsBadTable(t *testing.T) {
	for _, table := range []TableRef{
		{Dataset: "aef"},
		{Dataset: "aef", Table: "x`; DROP TABLE y"},
		{Project: "a.b", Dataset: "aef", Table: "t"},
	} {
		if _, err := BuildSQL(table, 0); err == nil {
			t.Errorf("expected error for %+v", table)
		}
	}
}

func TestTableRefString(t *testing.T) {
	if got := (TableRef{Dataset: "d", Table: "t"}).String(); got != "d.t" {
		t.Errorf("got %q", got)
	}
	if got := (TableRef{Project: "p", Dataset: "d", Table: "t"}).String(); got != "p.d.t" {
		t.Errorf("got %q", got)
	}
}

func TestRequestGeoJSON(t *testing.T) {
	poly, err := ParseGeometry([]byte(squarePolygon))
	if err != nil {
		t.Fatal(err)
	}
	s, err := Request{Geometry: poly}.GeoJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s, `"type":"Polygon"`) {
		t.Errorf("unexpected GeoJSON %s", s)
	}
}
