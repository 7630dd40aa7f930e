// Package tradearea builds the circular or rectangular area around a chosen
// coordinate that nearby data is subset by.
package tradearea

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/chomoku/kyoto-hexmap/internal/geo/crs"
)

var (
	ErrProjection      = crs.ErrUnsupported
	ErrInvalidGeometry = errors.New("invalid trade area geometry")
)

const (
	DefaultProjectedCRS = "EPSG:6674"
	DefaultDisplayCRS   = "EPSG:4326"
	DefaultQuadSegs     = 16
)

// Policy selects the final shape built from the buffered center.
type Policy string

const (
	// PolicyRect replaces the buffer with its minimum rotated rectangle.
	PolicyRect Policy = "rect"
	// PolicyCircle keeps the buffer polygon as is.
	PolicyCircle Policy = "circle"
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rect", "rectangle":
		return PolicyRect, nil
	case "circle", "buffer", "disk":
		return PolicyCircle, nil
	default:
		return "", fmt.Errorf("unknown trade area policy %q (want rect|circle)", s)
	}
}

type Options struct {
	ProjectedCRS string
	DisplayCRS   string
	Policy       Policy
	// QuadSegs is the number of buffer segments per quarter circle.
	QuadSegs int
}

func (o Options) withDefaults() Options {
	if o.ProjectedCRS == "" {
		o.ProjectedCRS = DefaultProjectedCRS
	}
	if o.DisplayCRS == "" {
		o.DisplayCRS = DefaultDisplayCRS
	}
	if o.Policy == "" {
		o.Policy = PolicyRect
	}
	if o.QuadSegs <= 0 {
		o.QuadSegs = DefaultQuadSegs
	}
	return o
}

type TradeArea struct {
	Center       orb.Point
	RadiusMeters float64
	Policy       Policy
	ProjectedCRS string
	DisplayCRS   string
	// Shape is expressed in DisplayCRS and is what records are filtered by.
	Shape orb.Polygon
	// ProjectedShape is the same shape in ProjectedCRS (meters).
	ProjectedShape orb.Polygon
}

// Bound returns the bounding box of Shape in display coordinates.
func (a TradeArea) Bound() orb.Bound { return a.Shape.Bound() }

func (a TradeArea) IsEmpty() bool {
	return len(a.Shape) == 0 || len(a.Shape[0]) < 4
}

// Feature renders the boundary for map overlays.
func (a TradeArea) Feature() *geojson.Feature {
	f := geojson.NewFeature(a.Shape)
	f.Properties["center_lon"] = a.Center.Lon()
	f.Properties["center_lat"] = a.Center.Lat()
	f.Properties["radius_m"] = a.RadiusMeters
	f.Properties["policy"] = string(a.Policy)
	return f
}

// Build buffers center by radiusMeters in the projected system, applies the
// policy and reprojects the result to the display system.
//
// Center coordinates are not range checked: a center far outside the
// projected system's zone yields a distorted but valid polygon.
func Build(center orb.Point, radiusMeters float64, opts Options) (TradeArea, error) {
	opts = opts.withDefaults()

	if !finite(center.Lon()) || !finite(center.Lat()) {
		return TradeArea{}, fmt.Errorf("%w: non-finite center %v", ErrInvalidGeometry, center)
	}
	if !finite(radiusMeters) || radiusMeters <= 0 {
		return TradeArea{}, fmt.Errorf("%w: radius must be > 0 (got %v)", ErrInvalidGeometry, radiusMeters)
	}
	if opts.Policy != PolicyRect && opts.Policy != PolicyCircle {
		return TradeArea{}, fmt.Errorf("%w: unknown policy %q", ErrInvalidGeometry, opts.Policy)
	}

	display, err := crs.Lookup(opts.DisplayCRS)
	if err != nil {
		return TradeArea{}, fmt.Errorf("display crs: %w", err)
	}
	if display.Kind() != crs.Geographic {
		return TradeArea{}, fmt.Errorf("%w: display crs %s must be geographic", ErrProjection, display.ID())
	}
	projected, err := crs.Lookup(opts.ProjectedCRS)
	if err != nil {
		return TradeArea{}, fmt.Errorf("projected crs: %w", err)
	}
	if projected.Kind() != crs.Projected {
		return TradeArea{}, fmt.Errorf("%w: projected crs %s must use meters", ErrProjection, projected.ID())
	}

	pc := crs.Transform(display, projected, center)
	shape := Buffer(pc, radiusMeters, opts.QuadSegs)
	if opts.Policy == PolicyRect {
		shape = MinimumRotatedRectangle(shape[0])
	}

	return TradeArea{
		Center:         center,
		RadiusMeters:   radiusMeters,
		Policy:         opts.Policy,
		ProjectedCRS:   projected.ID(),
		DisplayCRS:     display.ID(),
		Shape:          reproject(shape, crs.Projection(projected, display)),
		ProjectedShape: shape,
	}, nil
}

func reproject(p orb.Polygon, proj orb.Projection) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		r := make(orb.Ring, len(ring))
		for j, pt := range ring {
			r[j] = proj(pt)
		}
		out[i] = r
	}
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
