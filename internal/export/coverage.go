package export

import "github.com/withObsrvr/aef-exporter/internal/engine"

// CoverageFeature converts an image into a feature holding the image's
// properties, human-readable start and end dates and its footprint in
// EPSG:4326.
func CoverageFeature(img engine.Image) engine.Value {
	n := img.Node()

	props := engine.Invoke("Element.toDictionary", map[string]*engine.Node{"element": n})
	props = setProperty(props, "start_date", formatDate(n, "system:time_start"))
	props = setProperty(props, "end_date", formatDate(n, "system:time_end"))
	props = engine.Invoke("Dictionary.remove", map[string]*engine.Node{
		"dictionary": props,
		"selectKeys": engine.Constant([]string{"system:band_names", "system:bands"}),
	})

	geom := engine.Invoke("Geometry.transform", map[string]*engine.Node{
		"geometry": engine.Invoke("Image.geometry", map[string]*engine.Node{"feature": n}),
		"proj":     engine.Invoke("Projection", map[string]*engine.Node{"crs": engine.Constant("EPSG:4326")}),
		"maxError": engine.Constant(1),
	})

	return engine.Raw{N: engine.Invoke("Feature", map[string]*engine.Node{
		"geometry": geom,
		"metadata": props,
	})}
}

func formatDate(img *engine.Node, property string) *engine.Node {
	millis := engine.Invoke("Element.get", map[string]*engine.Node{
		"object":   img,
		"property": engine.Constant(property),
	})
	return engine.Invoke("Date.format", map[string]*engine.Node{
		"date":   engine.Invoke("Date", map[string]*engine.Node{"value": millis}),
		"format": engine.Constant("YYYY-MM-dd"),
	})
}

func setProperty(dict *engine.Node, key string, value *engine.Node) *engine.Node {
	return engine.Invoke("Dictionary.set", map[string]*engine.Node{
		"dictionary": dict,
		"key":        engine.Constant(key),
		"value":      value,
	})
}
