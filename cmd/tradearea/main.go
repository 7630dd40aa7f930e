// Command tradearea builds one trade area and reports what falls inside it.
//
//	tradearea -lon 135.7681 -lat 35.0116 -radius 1000 \
//	    -dataset data/kyoto_suikei.gpkg -facilities data/kyoto_iryo_kikan.gpkg
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
	"github.com/chomoku/kyoto-hexmap/internal/dataset/loader"
	"github.com/chomoku/kyoto-hexmap/internal/geo/tradearea"
)

type report struct {
	Area       *geojson.Feature        `json:"area"`
	Tiles      *int                    `json:"tiles,omitempty"`
	Facilities *int                    `json:"facilities,omitempty"`
	Tally      []dataset.CategoryCount `json:"tally,omitempty"`
	Skipped    int                     `json:"skipped,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "tradearea:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tradearea", flag.ContinueOnError)
	lon := fs.Float64("lon", 135.7681, "center longitude")
	lat := fs.Float64("lat", 35.0116, "center latitude")
	radius := fs.Float64("radius", 1000, "radius in meters")
	policy := fs.String("policy", "rect", "area shape (rect|circle)")
	projected := fs.String("projected", tradearea.DefaultProjectedCRS, "metric CRS used for buffering")
	display := fs.String("display", tradearea.DefaultDisplayCRS, "CRS of the output and the datasets")
	quadSegs := fs.Int("quad-segs", tradearea.DefaultQuadSegs, "buffer segments per quarter circle")
	tiles := fs.String("dataset", "", "tile dataset to count (optional)")
	facilities := fs.String("facilities", "", "facility dataset to count and tally (optional)")
	field := fs.String("field", "P04_004", "facility category field")
	sep := fs.String("sep", dataset.FullWidthSpace, "category separator")
	top := fs.Int("top", 10, "number of categories to print (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := tradearea.ParsePolicy(*policy)
	if err != nil {
		return err
	}
	ta, err := tradearea.Build(orb.Point{*lon, *lat}, *radius, tradearea.Options{
		ProjectedCRS: *projected,
		DisplayCRS:   *display,
		Policy:       p,
		QuadSegs:     *quadSegs,
	})
	if err != nil {
		return err
	}
	rep := report{Area: ta.Feature()}

	if *tiles != "" {
		sub, err := subset(ctx, *tiles, ta)
		if err != nil {
			return err
		}
		n := sub.Len()
		rep.Tiles = &n
	}
	if *facilities != "" {
		sub, err := subset(ctx, *facilities, ta)
		if err != nil {
			return err
		}
		n := sub.Len()
		rep.Facilities = &n

		tally, err := dataset.TallyCategories(sub, *field, *sep)
		var mf *dataset.MissingFieldError
		if err != nil && !errors.As(err, &mf) {
			return err
		}
		rep.Tally = tally.Top(*top)
		rep.Skipped = tally.Skipped
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(rep)
}

// subset loads path and keeps the records intersecting the area. An empty
// dataset yields an empty subset.
func subset(ctx context.Context, path string, ta tradearea.TradeArea) (*dataset.Collection, error) {
	c, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	sub, err := dataset.FilterIntersecting(c, ta)
	if errors.Is(err, dataset.ErrEmptyIndex) {
		return dataset.NewCollection(c.Name, c.CRS, c.AttributeColumns(), nil, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sub, nil
}
