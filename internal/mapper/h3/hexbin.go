package h3mapper

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	h3 "github.com/uber/h3-go/v4"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

type HexBin struct {
	Cell     string
	Center   orb.Point
	Boundary orb.Polygon
	Count    int
	Mean     float64
}

// Bin assigns every record's centroid to a cell at res and averages the
// numeric values of column per cell. Non-numeric values are ignored; cells
// with no numeric value are not returned.
func (m *Mapper) Bin(c *dataset.Collection, column string, res int) ([]HexBin, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	col := c.ColumnIndex(column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", dataset.ErrMissingField, column)
	}

	type acc struct {
		n   int
		sum float64
	}
	cells := make(map[h3.Cell]*acc)
	for i, r := range c.Records {
		if r.Geometry == nil || col >= len(r.Values) {
			continue
		}
		v, ok := toFloat(r.Values[col])
		if !ok {
			continue
		}
		p := c.Centroid(i)
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, res)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.Row, err)
		}
		a := cells[cell]
		if a == nil {
			a = &acc{}
			cells[cell] = a
		}
		a.n++
		a.sum += v
	}

	out := make([]HexBin, 0, len(cells))
	for cell, a := range cells {
		id := cell.String()
		ll, err := cell.LatLng()
		if err != nil {
			return nil, fmt.Errorf("cell %s center: %w", id, err)
		}
		boundary, err := CellBoundary(id)
		if err != nil {
			return nil, err
		}
		out = append(out, HexBin{
			Cell:     id,
			Center:   orb.Point{ll.Lng, ll.Lat},
			Boundary: boundary,
			Count:    a.n,
			Mean:     a.sum / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out, nil
}

// FeatureCollection renders bins as polygons carrying cell, count and value.
func FeatureCollection(bins []HexBin) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, b := range bins {
		f := geojson.NewFeature(b.Boundary)
		f.ID = b.Cell
		f.Properties["cell"] = b.Cell
		f.Properties["count"] = b.Count
		f.Properties["value"] = b.Mean
		fc.Append(f)
	}
	return fc
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint8:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
