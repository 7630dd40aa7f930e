package dataset

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Area is anything with a bounding box in the collection's CRS.
type Area interface {
	Bound() orb.Bound
}

// FilterIntersecting returns the records whose bounding box intersects the
// area's bounding box, in original row order and without the derived
// render-only columns.
//
// The test is box against box, not exact geometry: a record near a corner of
// a circular area can be returned although its shape lies outside the circle.
func FilterIntersecting(c *Collection, area Area) (*Collection, error) {
	if c == nil || c.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	ab := area.Bound()
	if ab.IsEmpty() {
		return nil, ErrEmptyArea
	}
	query, err := rectFor(ab.Pad(minExtent))
	if err != nil {
		return nil, fmt.Errorf("area rect: %w", err)
	}

	hits := c.tree.SearchIntersect(query)
	pos := make([]int, 0, len(hits))
	for _, h := range hits {
		x := h.(*indexed)
		// the index pads degenerate boxes; confirm against the real bound
		if !c.Records[x.pos].Geometry.Bound().Intersects(ab) {
			continue
		}
		pos = append(pos, x.pos)
	}
	sort.Ints(pos)

	keep := len(c.Columns) - c.Derived
	recs := make([]Record, 0, len(pos))
	for _, p := range pos {
		r := c.Records[p]
		vals := r.Values
		if len(vals) > keep {
			vals = vals[:keep:keep]
		}
		recs = append(recs, Record{Row: r.Row, Geometry: r.Geometry, Values: vals})
	}
	cols := c.Columns[:keep:keep]
	return NewCollection(c.Name, c.CRS, cols, recs, 0), nil
}

var _ rtreego.Spatial = (*indexed)(nil)
