package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/text/encoding/japanese"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

// LoadShapefile reads an ESRI shapefile whose coordinates are lon/lat.
// Attributes are decoded from Shift_JIS when the .cpg sidecar says so or
// when a value is not valid UTF-8.
func LoadShapefile(path string) (*dataset.Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("shapefile open %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	sjis := declaresShiftJIS(path)

	fields := reader.Fields()
	cols := make([]string, len(fields))
	numeric := make([]bool, len(fields))
	for i, f := range fields {
		cols[i] = strings.TrimRight(f.String(), "\x00")
		numeric[i] = f.Fieldtype == 'N' || f.Fieldtype == 'F'
	}

	var recs []dataset.Record
	for reader.Next() {
		n, shape := reader.Shape()
		vals := make([]any, len(fields))
		for i := range fields {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			vals[i] = attrValue(raw, numeric[i], sjis)
		}
		recs = append(recs, dataset.Record{Row: n, Geometry: shapeToOrb(shape), Values: vals})
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return toGeographic(dataset.NewCollection(name, DisplayCRS, cols, recs, 0), "")
}

func attrValue(raw string, numeric, sjis bool) any {
	if raw == "" {
		return nil
	}
	if numeric {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	if sjis || !utf8.ValidString(raw) {
		if s, err := japanese.ShiftJIS.NewDecoder().String(raw); err == nil {
			return s
		}
	}
	return raw
}

func declaresShiftJIS(shpPath string) bool {
	b, err := os.ReadFile(strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg")
	if err != nil {
		return false
	}
	s := strings.ToUpper(strings.TrimSpace(string(b)))
	return strings.Contains(s, "SJIS") || strings.Contains(s, "SHIFT") || strings.Contains(s, "932")
}

func shapeToOrb(s shp.Shape) orb.Geometry {
	switch t := s.(type) {
	case *shp.Point:
		return orb.Point{t.X, t.Y}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(t.Points))
		for i, p := range t.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp
	case *shp.PolyLine:
		mls := make(orb.MultiLineString, 0, t.NumParts)
		for _, pts := range parts(t.Parts, t.Points) {
			mls = append(mls, orb.LineString(pts))
		}
		return mls
	case *shp.Polygon:
		return polygonParts(parts(t.Parts, t.Points))
	default:
		return nil
	}
}

// polygonParts groups shapefile rings into polygons. Clockwise rings are
// outer rings; counter-clockwise rings are holes of the outer ring that
// contains them.
func polygonParts(rings [][]orb.Point) orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(rings))
	var holes []orb.Ring
	for _, pts := range rings {
		r := orb.Ring(pts)
		if r.Orientation() == orb.CCW {
			holes = append(holes, r)
			continue
		}
		mp = append(mp, orb.Polygon{r})
	}
	for _, h := range holes {
		owner := -1
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				owner = i
				break
			}
		}
		if owner < 0 {
			// orphan holes become outer rings
			mp = append(mp, orb.Polygon{h})
			continue
		}
		mp[owner] = append(mp[owner], h)
	}
	return mp
}

func parts(idx []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(idx))
	for i, start := range idx {
		end := int32(len(pts))
		if i+1 < len(idx) {
			end = idx[i+1]
		}
		if start < 0 || start >= end || int(end) > len(pts) {
			continue
		}
		seg := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}
