package coverage

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

// LoadGeometry reads a GeoJSON Polygon, or a Feature wrapping one, from path.
// Files ending in .zst are zstd-compressed.
func LoadGeometry(path string) (orb.Polygon, error) {
	const op = "load geometry"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(errs.InvalidInput, op, fmt.Errorf("read %s: %w", path, err))
	}

	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()

		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errs.E(errs.InvalidInput, op, fmt.Errorf("zstd decompress %s: %w", path, err))
		}
	}

	return ParseGeometry(data)
}

// ParseGeometry accepts a GeoJSON Polygon or a Feature whose geometry is a
// Polygon. Anything else is InvalidInput.
func ParseGeometry(data []byte) (orb.Polygon, error) {
	const op = "parse geometry"

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errs.E(errs.InvalidInput, op, fmt.Errorf("decode GeoJSON: %w", err))
	}

	var g orb.Geometry
	switch head.Type {
	case "Polygon":
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, errs.E(errs.InvalidInput, op, fmt.Errorf("decode polygon: %w", err))
		}
		g = geom.Geometry()
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, errs.E(errs.InvalidInput, op, fmt.Errorf("decode feature: %w", err))
		}
		g = f.Geometry
	default:
		return nil, errs.Errorf(errs.InvalidInput, op, "input file must be a Polygon or a Feature wrapping one, got %q", head.Type)
	}

	poly, ok := g.(orb.Polygon)
	if !ok {
		kind := "none"
		if g != nil {
			kind = g.GeoJSONType()
		}
		return nil, errs.Errorf(errs.InvalidInput, op, "feature geometry must be a Polygon, got %s", kind)
	}
	if err := validatePolygon(poly); err != nil {
		return nil, errs.E(errs.InvalidInput, op, err)
	}
	return poly, nil
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("ring %d has %d positions, need at least 4", i, len(ring))
		}
		if ring[0] != ring[len(ring)-1] {
			return fmt.Errorf("ring %d is not closed", i)
		}
	}
	for _, pt := range p[0] {
		if pt.Lon() < -180 || pt.Lon() > 180 || pt.Lat() < -90 || pt.Lat() > 90 {
			return fmt.Errorf("position %v is outside geographic coordinates", pt)
		}
	}
	return nil
}
