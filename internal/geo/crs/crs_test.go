package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

func TestLookup_KnownAndUnknown(t *testing.T) {
	cases := map[string]Kind{
		"EPSG:4326":  Geographic,
		"epsg:6668":  Geographic,
		"6674":       Projected,
		"EPSG:2448":  Projected,
		"EPSG:6690":  Projected,
		"EPSG:32653": Projected,
		"EPSG:3857":  Projected,
	}
	for id, want := range cases {
		c, err := Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", id, err)
		}
		if c.Kind() != want {
			t.Fatalf("Lookup(%q) kind=%v want %v", id, c.Kind(), want)
		}
	}

	for _, bad := range []string{"", "EPSG:", "EPSG:abc", "EPSG:9999", "-4326"} {
		if _, err := Lookup(bad); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Lookup(%q) err=%v want ErrUnsupported", bad, err)
		}
	}
}

func TestJapanZoneVI_KyotoOffsets(t *testing.T) {
	c, err := Lookup("EPSG:6674")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	// Kyoto City Hall, west and south of the zone VI origin (36N, 136E).
	p := c.Forward(orb.Point{135.7681, 35.0116})
	if p.X() > -20500 || p.X() < -22000 {
		t.Fatalf("easting=%f out of expected range", p.X())
	}
	if p.Y() > -108800 || p.Y() < -110500 {
		t.Fatalf("northing=%f out of expected range", p.Y())
	}

	origin := c.Forward(orb.Point{136, 36})
	if math.Abs(origin.X()) > 1e-6 || math.Abs(origin.Y()) > 1e-6 {
		t.Fatalf("origin must project to (0,0), got %v", origin)
	}
}

func TestTransverseMercator_RoundTrip(t *testing.T) {
	for _, id := range []string{"EPSG:6674", "EPSG:6690", "EPSG:32653", "EPSG:3857"} {
		c, err := Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", id, err)
		}
		for _, ll := range []orb.Point{{135.7681, 35.0116}, {135.70, 34.93}, {135.85, 35.10}} {
			back := c.Inverse(c.Forward(ll))
			if math.Abs(back.Lon()-ll.Lon()) > 1e-9 || math.Abs(back.Lat()-ll.Lat()) > 1e-9 {
				t.Fatalf("%s round trip %v -> %v", id, ll, back)
			}
		}
	}
}

func TestUTM53_FalseEasting(t *testing.T) {
	c, err := Lookup("EPSG:32653")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	// 135E is the central meridian of zone 53.
	p := c.Forward(orb.Point{135, 35})
	if math.Abs(p.X()-500000) > 1e-6 {
		t.Fatalf("easting on central meridian=%f want 500000", p.X())
	}
	if p.Y() < 3870000 || p.Y() > 3880000 {
		t.Fatalf("northing=%f out of expected range", p.Y())
	}
}

func TestTransform_BetweenProjectedSystems(t *testing.T) {
	jgd, _ := Lookup("EPSG:6674")
	utm53, _ := Lookup("EPSG:6690")
	ll := orb.Point{135.7681, 35.0116}

	viaUTM := Transform(jgd, utm53, jgd.Forward(ll))
	direct := utm53.Forward(ll)
	if math.Abs(viaUTM.X()-direct.X()) > 1e-3 || math.Abs(viaUTM.Y()-direct.Y()) > 1e-3 {
		t.Fatalf("transform mismatch: %v vs %v", viaUTM, direct)
	}
}

func TestJapanZoneVI_AgreesWithWGS84Package(t *testing.T) {
	c, _ := Lookup("EPSG:6674")
	grs80 := wgs84.Helmert(6378137, 298.257222101, 0, 0, 0, 0, 0, 0, 0)
	zoneVI := grs80.TransverseMercator(136, 36, 0.9999, 0, 0)
	toZone := wgs84.Transform(grs80.LonLat(), zoneVI)

	for _, ll := range []orb.Point{{135.7681, 35.0116}, {135.70, 34.93}, {135.85, 35.10}} {
		got := c.Forward(ll)
		e, n, _ := toZone(ll.Lon(), ll.Lat(), 0)
		if math.Abs(got.X()-e) > 0.05 || math.Abs(got.Y()-n) > 0.05 {
			t.Fatalf("%v: got %v want (%f, %f)", ll, got, e, n)
		}
	}
}

func TestLookup_FallsBackToRepository(t *testing.T) {
	c, err := Lookup("EPSG:27700")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Kind() != Projected || c.ID() != "EPSG:27700" {
		t.Fatalf("kind=%v id=%s", c.Kind(), c.ID())
	}
	london := orb.Point{-0.1276, 51.5072}
	p := c.Forward(london)
	if p.X() < 520000 || p.X() > 540000 || p.Y() < 170000 || p.Y() > 190000 {
		t.Fatalf("british grid=%v out of expected range", p)
	}
	back := c.Inverse(p)
	if math.Abs(back.Lon()-london.Lon()) > 1e-4 || math.Abs(back.Lat()-london.Lat()) > 1e-4 {
		t.Fatalf("round trip %v -> %v", london, back)
	}

	etrs, err := Lookup("EPSG:4258")
	if err != nil || etrs.Kind() != Geographic {
		t.Fatalf("EPSG:4258 kind=%v err=%v", etrs, err)
	}
	if _, err := Lookup("EPSG:4978"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("geocentric err=%v want ErrUnsupported", err)
	}
}
