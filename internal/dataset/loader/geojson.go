package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

// LoadGeoJSON reads a FeatureCollection. GeoJSON carries no column order, so
// columns are the union of property keys sorted by name.
func LoadGeoJSON(path string) (*dataset.Collection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geojson read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("geojson parse %s: %w", path, err)
	}

	keys := map[string]struct{}{}
	for _, f := range fc.Features {
		for k := range f.Properties {
			keys[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(keys))
	for k := range keys {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	recs := make([]dataset.Record, len(fc.Features))
	for i, f := range fc.Features {
		vals := make([]any, len(cols))
		for j, k := range cols {
			vals[j] = f.Properties[k]
		}
		recs[i] = dataset.Record{Row: i, Geometry: f.Geometry, Values: vals}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return toGeographic(dataset.NewCollection(name, DisplayCRS, cols, recs, 0), "")
}
