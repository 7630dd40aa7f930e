package crs

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
)

// GRS80 ellipsoid. WGS84 differs by ~0.1mm in the semi-minor axis which is
// below anything this service measures.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// origin latitude / central meridian (degrees) of the 19 Japan Plane
// Rectangular zones, in zone order.
var japanZones = [19][2]float64{
	{33, 129.5}, {33, 131}, {36, 132 + 1.0/6}, {33, 133.5}, {36, 134 + 1.0/3},
	{36, 136}, {36, 137 + 1.0/6}, {36, 138.5}, {36, 139 + 5.0/6}, {40, 140 + 5.0/6},
	{44, 140.25}, {44, 142.25}, {44, 144.25}, {26, 142}, {26, 127.5},
	{26, 124}, {26, 131}, {20, 136}, {26, 154},
}

func japanPlane(code, zone int) CRS {
	z := japanZones[zone]
	return newTransverseMercator(code, z[0], z[1], 0.9999, 0, 0)
}

func utm(code, zone int) CRS {
	return newTransverseMercator(code, 0, float64(6*zone-183), 0.9996, 500000, 0)
}

// transverseMercator implements the Krüger series to fourth order in the
// third flattening, good to well under a millimetre inside a zone.
type transverseMercator struct {
	code   int
	lon0   float64 // radians
	k0     float64
	fe, fn float64
	e      float64
	a      float64 // rectifying radius
	m0     float64 // meridian distance of the origin latitude (unscaled, /a)
	alpha  [4]float64
	beta   [4]float64
	delta  [4]float64
}

func newTransverseMercator(code int, lat0, lon0, k0, fe, fn float64) *transverseMercator {
	n := grs80F / (2 - grs80F)
	n2, n3, n4 := n*n, n*n*n, n*n*n*n

	t := &transverseMercator{
		code: code,
		lon0: lon0 * math.Pi / 180,
		k0:   k0,
		fe:   fe,
		fn:   fn,
		e:    2 * math.Sqrt(n) / (1 + n),
		a:    grs80A / (1 + n) * (1 + n2/4 + n4/64),
		alpha: [4]float64{
			n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180,
			13*n2/48 - 3*n3/5 + 557*n4/1440,
			61*n3/240 - 103*n4/140,
			49561 * n4 / 161280,
		},
		beta: [4]float64{
			n/2 - 2*n2/3 + 37*n3/96 - n4/360,
			n2/48 + n3/15 - 437*n4/1440,
			17*n3/480 - 37*n4/840,
			4397 * n4 / 161280,
		},
		delta: [4]float64{
			2*n - 2*n2/3 - 2*n3 + 116*n4/45,
			7*n2/3 - 8*n3/5 - 227*n4/45,
			56*n3/15 - 136*n4/35,
			4279 * n4 / 630,
		},
	}
	xi, _ := t.series(lat0*math.Pi/180, 0)
	t.m0 = xi
	return t
}

func (t *transverseMercator) ID() string { return "EPSG:" + strconv.Itoa(t.code) }
func (t *transverseMercator) Kind() Kind { return Projected }

// series returns the scaled (xi, eta) for a latitude and a longitude offset
// from the central meridian, both in radians.
func (t *transverseMercator) series(phi, dlam float64) (float64, float64) {
	s := math.Sin(phi)
	tau := math.Sinh(math.Atanh(s) - t.e*math.Atanh(t.e*s))
	xiP := math.Atan2(tau, math.Cos(dlam))
	etaP := math.Atanh(math.Sin(dlam) / math.Sqrt(1+tau*tau))

	xi, eta := xiP, etaP
	for j, a := range t.alpha {
		k := 2 * float64(j+1)
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}
	return xi, eta
}

func (t *transverseMercator) Forward(p orb.Point) orb.Point {
	phi := p.Lat() * math.Pi / 180
	dlam := p.Lon()*math.Pi/180 - t.lon0
	xi, eta := t.series(phi, dlam)
	x := t.fe + t.k0*t.a*eta
	y := t.fn + t.k0*t.a*(xi-t.m0)
	return orb.Point{x, y}
}

func (t *transverseMercator) Inverse(p orb.Point) orb.Point {
	xi := (p.Y()-t.fn)/(t.k0*t.a) + t.m0
	eta := (p.X() - t.fe) / (t.k0 * t.a)

	xiP, etaP := xi, eta
	for j, b := range t.beta {
		k := 2 * float64(j+1)
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j, d := range t.delta {
		phi += d * math.Sin(2*float64(j+1)*chi)
	}
	lam := t.lon0 + math.Atan2(math.Sinh(etaP), math.Cos(xiP))
	return orb.Point{lam * 180 / math.Pi, phi * 180 / math.Pi}
}
