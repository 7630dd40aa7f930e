package h3mapper

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	MinBins     = 3
	MaxBins     = 100
	DefaultBins = 20
)

// average hexagon edge length in meters, by resolution
var edgeLengthM = [16]float64{
	1281256.011, 483056.8391, 182512.9565, 68979.22179,
	26071.75968, 9854.090990, 3724.532667, 1406.475763,
	531.414010, 200.786148, 75.863783, 28.663897,
	10.830188, 4.092010, 1.546100, 0.584169,
}

// ClampBins keeps a bin count inside the slider range.
func ClampBins(nx int) int {
	switch {
	case nx <= 0:
		return DefaultBins
	case nx < MinBins:
		return MinBins
	case nx > MaxBins:
		return MaxBins
	}
	return nx
}

// ResolutionForBins picks the resolution whose hexagon width is closest (in
// log scale) to the bound's east-west extent divided by nx.
func ResolutionForBins(b orb.Bound, nx int) int {
	nx = ClampBins(nx)
	midLat := (b.Min.Lat() + b.Max.Lat()) / 2
	width := geo.Distance(orb.Point{b.Min.Lon(), midLat}, orb.Point{b.Max.Lon(), midLat})
	if width <= 0 {
		return len(edgeLengthM) - 1
	}
	target := math.Log(width / float64(nx))

	best, bestDiff := 0, math.Inf(1)
	for res, edge := range edgeLengthM {
		d := math.Abs(math.Log(math.Sqrt(3)*edge) - target)
		if d < bestDiff {
			best, bestDiff = res, d
		}
	}
	return best
}

// EdgeLength is the average edge length at res in meters.
func EdgeLength(res int) float64 {
	if validateRes(res) != nil {
		return 0
	}
	return edgeLengthM[res]
}
