// Package crs resolves EPSG identifiers to coordinate reference systems and
// converts points between geographic degrees and projected meters.
package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/wroge/wgs84"
)

var ErrUnsupported = errors.New("unsupported coordinate reference system")

type Kind int

const (
	Geographic Kind = iota
	Projected
)

func (k Kind) String() string {
	if k == Projected {
		return "projected"
	}
	return "geographic"
}

// CRS converts between lon/lat degrees and the system's native coordinates.
// Geographic systems use the identity conversion.
type CRS interface {
	ID() string
	Kind() Kind
	Forward(p orb.Point) orb.Point
	Inverse(p orb.Point) orb.Point
}

// Lookup accepts "EPSG:6674", "epsg:6674" or "6674".
func Lookup(id string) (CRS, error) {
	code, err := parseCode(id)
	if err != nil {
		return nil, err
	}

	switch code {
	case 4326, 4612, 6668:
		return geographic{code: code}, nil
	case 3857, 900913:
		return webMercator{}, nil
	}

	// JGD2011 / Japan Plane Rectangular CS I..XIX
	if code >= 6669 && code <= 6687 {
		return japanPlane(code, code-6669), nil
	}
	// JGD2000 / Japan Plane Rectangular CS I..XIX
	if code >= 2443 && code <= 2461 {
		return japanPlane(code, code-2443), nil
	}
	// JGD2011 / UTM zone 51N..55N
	if code >= 6688 && code <= 6692 {
		return utm(code, 51+code-6688), nil
	}
	// WGS 84 / UTM zone 1N..60N
	if code >= 32601 && code <= 32660 {
		return utm(code, code-32600), nil
	}
	if c, ok := fromRepository(code); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: EPSG:%d", ErrUnsupported, code)
}

// Transform converts p from one system to another through geographic degrees.
func Transform(from, to CRS, p orb.Point) orb.Point {
	return to.Forward(from.Inverse(p))
}

// Projection returns an orb.Projection converting native coordinates of from
// into native coordinates of to.
func Projection(from, to CRS) orb.Projection {
	return func(p orb.Point) orb.Point { return Transform(from, to, p) }
}

func parseCode(id string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "EPSG:")
	if s == "" {
		return 0, fmt.Errorf("%w: empty id", ErrUnsupported)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, id)
	}
	return n, nil
}

type geographic struct{ code int }

func (g geographic) ID() string                  { return "EPSG:" + strconv.Itoa(g.code) }
func (geographic) Kind() Kind                    { return Geographic }
func (geographic) Forward(p orb.Point) orb.Point { return p }
func (geographic) Inverse(p orb.Point) orb.Point { return p }

type webMercator struct{}

func (webMercator) ID() string { return "EPSG:3857" }
func (webMercator) Kind() Kind { return Projected }

func (webMercator) Forward(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(p)
}

func (webMercator) Inverse(p orb.Point) orb.Point {
	return project.Mercator.ToWGS84(p)
}

// repository holds the systems outside Japan that the wgs84 package knows:
// European national grids, ETRS89 UTM, a few NAD83 zones.
var repository = wgs84.EPSG()

// fromRepository adapts a geographic or projected system from repository.
// Geocentric systems are not supported.
func fromRepository(code int) (CRS, bool) {
	var kind Kind
	switch repository.Code(code).(type) {
	case wgs84.GeographicReferenceSystem:
		kind = Geographic
	case wgs84.ProjectedReferenceSystem:
		kind = Projected
	default:
		return nil, false
	}
	ref := repository.Code(code)
	return foreign{
		code: code,
		kind: kind,
		fwd:  wgs84.Transform(wgs84.LonLat(), ref),
		inv:  wgs84.Transform(ref, wgs84.LonLat()),
	}, true
}

type foreign struct {
	code     int
	kind     Kind
	fwd, inv wgs84.Func
}

func (f foreign) ID() string { return "EPSG:" + strconv.Itoa(f.code) }
func (f foreign) Kind() Kind { return f.kind }

func (f foreign) Forward(p orb.Point) orb.Point {
	x, y, _ := f.fwd(p.X(), p.Y(), 0)
	return orb.Point{x, y}
}

func (f foreign) Inverse(p orb.Point) orb.Point {
	lon, lat, _ := f.inv(p.X(), p.Y(), 0)
	return orb.Point{lon, lat}
}
