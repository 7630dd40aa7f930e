package dataset

import (
	"errors"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

type box orb.Bound

func (b box) Bound() orb.Bound { return orb.Bound(b) }

func square(minX, minY, size float64) orb.Polygon {
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{minX + size, minY + size}}.ToPolygon()
}

func threeTiles() *Collection {
	recs := []Record{
		{Row: 0, Geometry: square(135.60, 34.90, 0.01), Values: []any{"a", 10.0}},
		{Row: 1, Geometry: square(135.76, 35.00, 0.01), Values: []any{"b", 20.0}},
		{Row: 2, Geometry: square(135.90, 35.20, 0.01), Values: []any{"c", 30.0}},
	}
	return WithCentroids(NewCollection("tiles", "EPSG:4326", []string{"name", "pop"}, recs, 0))
}

func TestWithCentroids_AppendsDerivedColumn(t *testing.T) {
	c := threeTiles()
	if c.Derived != 1 || c.Columns[len(c.Columns)-1] != CentroidColumn {
		t.Fatalf("columns=%v derived=%d", c.Columns, c.Derived)
	}
	p := c.Centroid(1)
	if p[0] < 135.764 || p[0] > 135.766 || p[1] < 35.004 || p[1] > 35.006 {
		t.Fatalf("centroid=%v", p)
	}
	if !reflect.DeepEqual(c.AttributeColumns(), []string{"name", "pop"}) {
		t.Fatalf("attribute columns=%v", c.AttributeColumns())
	}
}

func TestFilterIntersecting_OnlyMiddleRecord(t *testing.T) {
	c := threeTiles()
	area := box{Min: orb.Point{135.755, 34.995}, Max: orb.Point{135.765, 35.005}}

	got, err := FilterIntersecting(c, area)
	if err != nil {
		t.Fatalf("FilterIntersecting: %v", err)
	}
	if got.Len() != 1 || got.Records[0].Row != 1 {
		t.Fatalf("want only row 1, got %+v", got.Records)
	}
	if !reflect.DeepEqual(got.Columns, []string{"name", "pop"}) {
		t.Fatalf("derived column must be dropped, columns=%v", got.Columns)
	}
	if len(got.Records[0].Values) != 2 {
		t.Fatalf("values=%v", got.Records[0].Values)
	}
}

func TestFilterIntersecting_PreservesOrderAndIsIdempotent(t *testing.T) {
	c := threeTiles()
	area := box{Min: orb.Point{135.5, 34.8}, Max: orb.Point{136.0, 35.3}}

	once, err := FilterIntersecting(c, area)
	if err != nil {
		t.Fatalf("first filter: %v", err)
	}
	if once.Len() != 3 {
		t.Fatalf("len=%d want 3", once.Len())
	}
	for i, r := range once.Records {
		if r.Row != i {
			t.Fatalf("row order broken: %+v", once.Records)
		}
	}

	twice, err := FilterIntersecting(once, area)
	if err != nil {
		t.Fatalf("second filter: %v", err)
	}
	if !reflect.DeepEqual(once.Columns, twice.Columns) || !reflect.DeepEqual(once.Records, twice.Records) {
		t.Fatalf("filter not idempotent:\n%+v\n%+v", once.Records, twice.Records)
	}
}

func TestFilterIntersecting_NeverReturnsDisjointBoxes(t *testing.T) {
	c := threeTiles()
	area := box{Min: orb.Point{135.7, 34.95}, Max: orb.Point{135.95, 35.25}}
	got, err := FilterIntersecting(c, area)
	if err != nil {
		t.Fatalf("FilterIntersecting: %v", err)
	}
	for _, r := range got.Records {
		if !r.Geometry.Bound().Intersects(area.Bound()) {
			t.Fatalf("row %d does not intersect area", r.Row)
		}
	}
	if got.Len() != 2 {
		t.Fatalf("len=%d want 2", got.Len())
	}
}

func TestFilterIntersecting_EmptyAndNoHits(t *testing.T) {
	empty := NewCollection("empty", "EPSG:4326", []string{"x"}, nil, 0)
	area := box{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	if _, err := FilterIntersecting(empty, area); !errors.Is(err, ErrEmptyIndex) {
		t.Fatalf("err=%v want ErrEmptyIndex", err)
	}

	got, err := FilterIntersecting(threeTiles(), area)
	if err != nil {
		t.Fatalf("no-hit filter must not error: %v", err)
	}
	if got.Len() != 0 {
		t.Fatalf("len=%d want 0", got.Len())
	}
}

func TestFilterIntersecting_Points(t *testing.T) {
	recs := []Record{
		{Row: 0, Geometry: orb.Point{135.76, 35.01}, Values: []any{"in"}},
		{Row: 1, Geometry: orb.Point{135.90, 35.20}, Values: []any{"out"}},
	}
	c := NewCollection("facilities", "EPSG:4326", []string{"name"}, recs, 0)
	got, err := FilterIntersecting(c, box{Min: orb.Point{135.75, 35.00}, Max: orb.Point{135.77, 35.02}})
	if err != nil {
		t.Fatalf("FilterIntersecting: %v", err)
	}
	if got.Len() != 1 || got.Records[0].Values[0] != "in" {
		t.Fatalf("got %+v", got.Records)
	}
}

func facilities(values ...any) *Collection {
	recs := make([]Record, len(values))
	for i, v := range values {
		recs[i] = Record{Row: i, Geometry: orb.Point{135.7 + float64(i)*0.01, 35.0}, Values: []any{v}}
	}
	return NewCollection("facilities", "EPSG:4326", []string{"P04_004"}, recs, 0)
}

func TestTallyCategories_Scenario(t *testing.T) {
	c := facilities("内科　外科", "内科", "小児科")
	got, err := TallyCategories(c, "P04_004", FullWidthSpace)
	if err != nil {
		t.Fatalf("TallyCategories: %v", err)
	}
	want := []CategoryCount{{"内科", 2}, {"外科", 1}, {"小児科", 1}}
	if !reflect.DeepEqual(got.Entries, want) {
		t.Fatalf("entries=%v want %v", got.Entries, want)
	}
	if got.Tokens != 4 {
		t.Fatalf("tokens=%d want 4", got.Tokens)
	}
}

func TestTallyCategories_SkipsMissingAndSumsTokens(t *testing.T) {
	c := facilities("内科　外科　歯科", nil, "", 42, "外科")
	got, err := TallyCategories(c, "P04_004", "")
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err=%v want ErrMissingField", err)
	}
	var mfe *MissingFieldError
	if !errors.As(err, &mfe) || mfe.Field != "P04_004" {
		t.Fatalf("expected *MissingFieldError, got %v", err)
	}
	if got.Skipped != 3 {
		t.Fatalf("skipped=%d want 3", got.Skipped)
	}
	sum := 0
	for _, e := range got.Entries {
		sum += e.Count
	}
	if sum != 4 || got.Tokens != 4 {
		t.Fatalf("sum=%d tokens=%d want 4", sum, got.Tokens)
	}
	if got.Entries[0] != (CategoryCount{"外科", 2}) {
		t.Fatalf("top entry=%v", got.Entries[0])
	}
}

func TestTallyCategories_UnknownFieldSkipsEverything(t *testing.T) {
	c := facilities("内科")
	got, err := TallyCategories(c, "nope", FullWidthSpace)
	if err == nil || got.Skipped != 1 || len(got.Entries) != 0 {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}

func TestCategoryTally_Top(t *testing.T) {
	tl := CategoryTally{Entries: []CategoryCount{{"a", 3}, {"b", 2}, {"c", 1}}}
	if n := len(tl.Top(2)); n != 2 {
		t.Fatalf("Top(2) len=%d", n)
	}
	if n := len(tl.Top(10)); n != 3 {
		t.Fatalf("Top(10) len=%d", n)
	}
	if n := len(tl.Top(0)); n != 3 {
		t.Fatalf("Top(0) len=%d", n)
	}
}

func TestFilterIntersecting_KeepsTouchingBoxes(t *testing.T) {
	tile := orb.Bound{Min: orb.Point{135.76, 35.00}, Max: orb.Point{135.77, 35.01}}.ToPolygon()
	recs := []Record{{Row: 0, Geometry: tile, Values: []any{"edge"}}}
	c := NewCollection("tiles", "EPSG:4326", []string{"name"}, recs, 0)

	// shares the x=135.77 edge with the tile
	right := box{Min: orb.Point{135.77, 35.00}, Max: orb.Point{135.78, 35.01}}
	got, err := FilterIntersecting(c, right)
	if err != nil {
		t.Fatalf("FilterIntersecting: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("touching box dropped; len=%d", got.Len())
	}

	// shares only the corner point
	corner := box{Min: orb.Point{135.77, 35.01}, Max: orb.Point{135.78, 35.02}}
	if got, _ := FilterIntersecting(c, corner); got.Len() != 1 {
		t.Fatalf("corner-touching box dropped")
	}

	gap := box{Min: orb.Point{135.7701, 35.00}, Max: orb.Point{135.78, 35.01}}
	if got, _ := FilterIntersecting(c, gap); got.Len() != 0 {
		t.Fatalf("disjoint box kept")
	}
}
