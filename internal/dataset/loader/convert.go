package loader

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-geom"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
	"github.com/chomoku/kyoto-hexmap/internal/geo/crs"
)

// DisplayCRS is the system every loaded collection is expressed in.
const DisplayCRS = "EPSG:4326"

func toOrb(g geom.T) (orb.Geometry, error) {
	switch t := g.(type) {
	case nil:
		return nil, nil
	case *geom.Point:
		if t.Empty() {
			return nil, nil
		}
		return orb.Point{t.X(), t.Y()}, nil
	case *geom.MultiPoint:
		mp := make(orb.MultiPoint, 0, t.NumPoints())
		for i := 0; i < t.NumPoints(); i++ {
			p := t.Point(i)
			mp = append(mp, orb.Point{p.X(), p.Y()})
		}
		return mp, nil
	case *geom.LineString:
		return lineString(t.Coords()), nil
	case *geom.MultiLineString:
		mls := make(orb.MultiLineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			mls = append(mls, lineString(t.LineString(i).Coords()))
		}
		return mls, nil
	case *geom.Polygon:
		return polygon(t), nil
	case *geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			mp = append(mp, polygon(t.Polygon(i)))
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %T", g)
	}
}

func lineString(cs []geom.Coord) orb.LineString {
	ls := make(orb.LineString, len(cs))
	for i, c := range cs {
		ls[i] = orb.Point{c.X(), c.Y()}
	}
	return ls
}

func polygon(p *geom.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		cs := p.LinearRing(i).Coords()
		r := make(orb.Ring, len(cs))
		for j, c := range cs {
			r[j] = orb.Point{c.X(), c.Y()}
		}
		out = append(out, r)
	}
	return out
}

// toGeographic reprojects a collection stored in a projected system into
// DisplayCRS and appends the centroid column. An empty code means undefined
// and is taken as geographic.
func toGeographic(c *dataset.Collection, code string) (*dataset.Collection, error) {
	if code != "" {
		src, err := crs.Lookup(code)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", c.Name, err)
		}
		if src.Kind() == crs.Projected {
			dst, _ := crs.Lookup(DisplayCRS)
			proj := crs.Projection(src, dst)
			recs := make([]dataset.Record, len(c.Records))
			for i, r := range c.Records {
				g := r.Geometry
				if g != nil {
					g = project.Geometry(orb.Clone(g), proj)
				}
				recs[i] = dataset.Record{Row: r.Row, Geometry: g, Values: r.Values}
			}
			c = dataset.NewCollection(c.Name, DisplayCRS, c.Columns, recs, c.Derived)
		}
	}
	return dataset.WithCentroids(c), nil
}
