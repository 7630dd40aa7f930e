// Package dataset holds loaded geo-tagged records, the spatial index over
// their bounding boxes and the trade-area filter and category tally that run
// against them.
package dataset

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// CentroidColumn is the render-only column appended by WithCentroids.
const CentroidColumn = "centroid"

// pad applied to degenerate (point or axis-parallel) bounding boxes so the
// R-tree accepts them; ~0.1mm at Kyoto's latitude.
const minExtent = 1e-9

// Record is one row. Values align with the owning collection's Columns.
type Record struct {
	Row      int
	Geometry orb.Geometry
	Values   []any
}

// Collection is immutable once built.
type Collection struct {
	Name    string
	CRS     string
	Columns []string
	Records []Record
	// Derived counts trailing columns that exist only for rendering.
	Derived int

	tree *rtreego.Rtree
}

type indexed struct {
	pos  int
	rect rtreego.Rect
}

func (x *indexed) Bounds() rtreego.Rect { return x.rect }

func NewCollection(name, crsID string, columns []string, records []Record, derived int) *Collection {
	if derived < 0 || derived > len(columns) {
		derived = 0
	}
	c := &Collection{
		Name:    name,
		CRS:     crsID,
		Columns: columns,
		Records: records,
		Derived: derived,
	}

	objs := make([]rtreego.Spatial, 0, len(records))
	for i, r := range records {
		if r.Geometry == nil {
			continue
		}
		rect, err := rectFor(r.Geometry.Bound())
		if err != nil {
			continue
		}
		objs = append(objs, &indexed{pos: i, rect: rect})
	}
	c.tree = rtreego.NewTree(2, 25, 50, objs...)
	return c
}

func (c *Collection) Len() int { return len(c.Records) }

// ColumnIndex returns -1 when the column does not exist.
func (c *Collection) ColumnIndex(name string) int {
	for i, col := range c.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Value returns the attribute of record i in the named column.
func (c *Collection) Value(i int, column string) (any, bool) {
	idx := c.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(c.Records) {
		return nil, false
	}
	vals := c.Records[i].Values
	if idx >= len(vals) {
		return nil, false
	}
	return vals[idx], true
}

// AttributeColumns are the columns minus the trailing derived ones.
func (c *Collection) AttributeColumns() []string {
	return c.Columns[:len(c.Columns)-c.Derived]
}

func (c *Collection) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, r := range c.Records {
		if r.Geometry == nil {
			continue
		}
		if first {
			b = r.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(r.Geometry.Bound())
	}
	return b
}

// Centroid prefers the precomputed centroid column.
func (c *Collection) Centroid(i int) orb.Point {
	if v, ok := c.Value(i, CentroidColumn); ok {
		if p, ok := v.(orb.Point); ok {
			return p
		}
	}
	return centroidOf(c.Records[i].Geometry)
}

// WithCentroids returns a copy with the render-only centroid column appended.
func WithCentroids(c *Collection) *Collection {
	if c.ColumnIndex(CentroidColumn) >= 0 {
		return c
	}
	cols := append(append(make([]string, 0, len(c.Columns)+1), c.Columns...), CentroidColumn)
	recs := make([]Record, len(c.Records))
	for i, r := range c.Records {
		vals := append(append(make([]any, 0, len(r.Values)+1), r.Values...), centroidOf(r.Geometry))
		recs[i] = Record{Row: r.Row, Geometry: r.Geometry, Values: vals}
	}
	return NewCollection(c.Name, c.CRS, cols, recs, c.Derived+1)
}

func centroidOf(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{math.NaN(), math.NaN()}
	}
	p, _ := planar.CentroidArea(g)
	return p
}

func rectFor(b orb.Bound) (rtreego.Rect, error) {
	w := math.Max(b.Max.X()-b.Min.X(), minExtent)
	h := math.Max(b.Max.Y()-b.Min.Y(), minExtent)
	return rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, []float64{w, h})
}
