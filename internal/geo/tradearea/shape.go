package tradearea

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Buffer approximates the disk of radius r around c with 4*quadSegs
// vertices. The ring is closed and counter-clockwise.
func Buffer(c orb.Point, r float64, quadSegs int) orb.Polygon {
	if quadSegs <= 0 {
		quadSegs = DefaultQuadSegs
	}
	n := 4 * quadSegs
	ring := make(orb.Ring, 0, n+1)
	for i := range n {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{c.X() + r*math.Cos(a), c.Y() + r*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// MinimumRotatedRectangle returns the smallest-area rectangle, at any
// rotation, enclosing the ring. One of its sides is collinear with an edge of
// the convex hull.
func MinimumRotatedRectangle(ring orb.Ring) orb.Polygon {
	hull := convexHull(ring)
	if len(hull) < 3 {
		b := ring.Bound()
		return orb.Polygon{b.ToRing()}
	}

	bestArea := math.Inf(1)
	var best orb.Ring
	for i := range hull {
		p, q := hull[i], hull[(i+1)%len(hull)]
		theta := math.Atan2(q.Y()-p.Y(), q.X()-p.X())
		cos, sin := math.Cos(theta), math.Sin(theta)

		minX, minY := math.Inf(1), math.Inf(1)
		maxX, maxY := math.Inf(-1), math.Inf(-1)
		for _, h := range hull {
			// rotate by -theta so the edge lies on the x axis
			x := h.X()*cos + h.Y()*sin
			y := -h.X()*sin + h.Y()*cos
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}

		area := (maxX - minX) * (maxY - minY)
		if area < bestArea {
			bestArea = area
			unrotate := func(x, y float64) orb.Point {
				return orb.Point{x*cos - y*sin, x*sin + y*cos}
			}
			best = orb.Ring{
				unrotate(minX, minY),
				unrotate(maxX, minY),
				unrotate(maxX, maxY),
				unrotate(minX, maxY),
				unrotate(minX, minY),
			}
		}
	}
	return orb.Polygon{best}
}

// convexHull returns the hull vertices without the closing point, or fewer
// than three points when the ring is degenerate.
func convexHull(ring orb.Ring) []orb.Point {
	seen := make(map[orb.Point]struct{}, len(ring))
	uniq := make([]orb.Point, 0, len(ring))
	flat := make([]float64, 0, 2*len(ring))
	for _, p := range ring {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		uniq = append(uniq, p)
		flat = append(flat, p.X(), p.Y())
	}
	// the Graham scan needs three distinct points
	if len(uniq) < 3 {
		return uniq
	}
	var coords []float64
	switch g := xy.ConvexHullFlat(geom.XY, flat).(type) {
	case *geom.Polygon:
		coords = g.LinearRing(0).FlatCoords()
	case *geom.LineString:
		coords = g.FlatCoords()
	case *geom.Point:
		coords = g.FlatCoords()
	}
	hull := make([]orb.Point, 0, len(coords)/2)
	for j := 0; j+1 < len(coords); j += 2 {
		hull = append(hull, orb.Point{coords[j], coords[j+1]})
	}
	if n := len(hull); n > 1 && hull[0] == hull[n-1] {
		hull = hull[:n-1]
	}
	return hull
}
