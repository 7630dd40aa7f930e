// Package render runs the dashboard pipeline: build the trade area, filter
// the tile and facility datasets by it, tally facility categories and bin
// the tiles into hexagons.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/chomoku/kyoto-hexmap/internal/catalog"
	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/dataset"
	"github.com/chomoku/kyoto-hexmap/internal/geo/tradearea"
	"github.com/chomoku/kyoto-hexmap/internal/hitevents"
	"github.com/chomoku/kyoto-hexmap/internal/logger"
	h3mapper "github.com/chomoku/kyoto-hexmap/internal/mapper/h3"
)

var ErrUnknownDataset = errors.New("unknown dataset")

type Renderer interface {
	Render(ctx context.Context, req model.RenderRequest) (model.RenderResult, error)
}

type DatasetSource interface {
	Get(ctx context.Context, path string) (*dataset.Collection, error)
}

type EventSink interface {
	Publish(ev hitevents.Event)
}

type Options struct {
	ProjectedCRS string
	DisplayCRS   string
	QuadSegs     int
	TopN         int
	Variant      string
}

type Engine struct {
	cat    catalog.Catalog
	src    DatasetSource
	events EventSink
	mapr   *h3mapper.Mapper
	opts   Options
	logger *slog.Logger
}

// New wires an engine; events may be nil.
func New(cat catalog.Catalog, src DatasetSource, events EventSink, opts Options, log *slog.Logger) *Engine {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cat: cat, src: src, events: events, mapr: h3mapper.New(), opts: opts, logger: log}
}

// BuildTradeArea applies the engine's CRS settings to a single area.
func (e *Engine) BuildTradeArea(p model.TradeAreaParams) (tradearea.TradeArea, error) {
	policy, err := tradearea.ParsePolicy(p.Policy)
	if err != nil {
		return tradearea.TradeArea{}, fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	ta, err := tradearea.Build(orb.Point{p.Lon, p.Lat}, p.RadiusM, tradearea.Options{
		ProjectedCRS: e.opts.ProjectedCRS,
		DisplayCRS:   e.opts.DisplayCRS,
		Policy:       policy,
		QuadSegs:     e.opts.QuadSegs,
	})
	observability.IncTradeArea(string(policy), err)
	return ta, err
}

func (e *Engine) Render(ctx context.Context, req model.RenderRequest) (res model.RenderResult, err error) {
	start := time.Now()
	defer func() { observability.ObserveRender(err, time.Since(start).Seconds()) }()

	if err := req.Validate(); err != nil {
		return model.RenderResult{}, err
	}
	ds, ok := e.cat.Dataset(req.Dataset)
	if !ok {
		return model.RenderResult{}, fmt.Errorf("%w: %q", ErrUnknownDataset, req.Dataset)
	}
	ctx = logger.WithDataset(ctx, ds.Key)

	tiles, err := e.src.Get(ctx, ds.Path)
	if err != nil {
		return model.RenderResult{}, fmt.Errorf("load %s: %w", ds.Key, err)
	}

	column, err := pickColumn(ds, tiles, req.Column)
	if err != nil {
		return model.RenderResult{}, err
	}

	res = model.RenderResult{
		Dataset: ds.Key,
		Label:   ds.Label,
		Column:  column,
		Bins:    h3mapper.ClampBins(req.Bins),
		Chart:   model.DefaultChart(),
	}

	var facilities *dataset.Collection
	if req.ShowFacilities || req.TradeArea != nil {
		facilities, err = e.loadFacilities(ctx, &res)
		if err != nil {
			return model.RenderResult{}, err
		}
	}

	binned := tiles
	if req.TradeArea != nil {
		ta, err := e.BuildTradeArea(*req.TradeArea)
		if err != nil {
			return model.RenderResult{}, err
		}
		binned, facilities = e.applyTradeArea(ctx, ta, ds.Key, tiles, facilities, req.TopN, &res)
	}

	bound := tiles.Bound()
	if binned.Len() > 0 {
		bound = binned.Bound()
	}
	res.Resolution = h3mapper.ResolutionForBins(bound, res.Bins)
	res.HexEdgeM = h3mapper.EdgeLength(res.Resolution)
	bins, err := e.mapr.Bin(binned, column, res.Resolution)
	if err != nil {
		return model.RenderResult{}, fmt.Errorf("hexbin: %w", err)
	}
	res.Hexbins = h3mapper.FeatureCollection(bins)
	c := bound.Center()
	res.Chart.CenterLon, res.Chart.CenterLat = c.Lon(), c.Lat()

	if req.ShowFacilities && facilities != nil {
		res.Facilities = &model.Overlay{
			Label:   e.cat.Facilities.Label,
			Color:   "green",
			Opacity: 0.8,
			Points:  pointsOf(facilities),
		}
	}
	if req.ShowData {
		res.Data = tableOf(binned)
		if req.TradeArea != nil && facilities != nil {
			res.FacilityData = tableOf(facilities)
		}
	}
	if req.ShowSources {
		res.Attribution = append([]string(nil), e.cat.Attribution...)
	}

	e.logger.DebugContext(ctx, "rendered",
		"column", column,
		"bins", res.Bins,
		"res", res.Resolution,
		"hexbins", len(bins),
		"trade_area", req.TradeArea != nil)
	return res, nil
}

func (e *Engine) loadFacilities(ctx context.Context, res *model.RenderResult) (*dataset.Collection, error) {
	if e.cat.Facilities.Path == "" {
		res.Warnings = append(res.Warnings, "no facility dataset configured")
		return nil, nil
	}
	f, err := e.src.Get(ctx, e.cat.Facilities.Path)
	if err != nil {
		return nil, fmt.Errorf("load facilities: %w", err)
	}
	return f, nil
}

// applyTradeArea filters tiles and facilities by the area, tallies the
// facility categories and fills the trade-area overlay. It returns the
// filtered collections.
func (e *Engine) applyTradeArea(ctx context.Context, ta tradearea.TradeArea, key string, tiles, facilities *dataset.Collection, topN int, res *model.RenderResult) (*dataset.Collection, *dataset.Collection) {
	overlay := &model.TradeAreaOverlay{
		Center:   [2]float64{ta.Center.Lon(), ta.Center.Lat()},
		RadiusM:  ta.RadiusMeters,
		Policy:   string(ta.Policy),
		Boundary: ta.Feature(),
	}
	res.TradeArea = overlay

	tiles = e.filter(ctx, tiles, ta, key, res)
	overlay.Tiles = tiles.Len()

	if facilities != nil {
		facilities = e.filter(ctx, facilities, ta, "facilities", res)
		overlay.Facilities = facilities.Len()

		tally, err := dataset.TallyCategories(facilities, e.cat.Facilities.CategoryField, e.cat.Facilities.Separator)
		if err != nil {
			e.logger.DebugContext(ctx, "tally skipped records",
				"field", e.cat.Facilities.CategoryField,
				"skipped", tally.Skipped,
				"err", err)
		}
		if topN <= 0 {
			topN = e.opts.TopN
		}
		for _, c := range tally.Top(topN) {
			res.Tally = append(res.Tally, model.TallyEntry{Category: c.Token, Count: c.Count})
		}
		res.TallySkipped = tally.Skipped
	}

	cellRes := h3mapper.ResolutionForBins(ta.Bound(), h3mapper.DefaultBins)
	cells, err := e.mapr.CellsForGeometry(ta.Shape, cellRes)
	if err != nil {
		res.Warnings = append(res.Warnings, "trade area coverage: "+err.Error())
	}
	overlay.Cells = cells

	if e.events != nil {
		e.events.Publish(hitevents.Event{
			Dataset: key,
			Lon:     ta.Center.Lon(),
			Lat:     ta.Center.Lat(),
			RadiusM: ta.RadiusMeters,
			Policy:  string(ta.Policy),
			TS:      time.Now().UTC(),
			Variant: e.opts.Variant,
		})
	}
	return tiles, facilities
}

// filter never fails the render: an empty source yields an empty result and
// a warning.
func (e *Engine) filter(ctx context.Context, c *dataset.Collection, ta tradearea.TradeArea, label string, res *model.RenderResult) *dataset.Collection {
	out, err := dataset.FilterIntersecting(c, ta)
	if err != nil {
		e.logger.WarnContext(ctx, "filter failed", "source", label, "err", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", label, err))
		return dataset.NewCollection(c.Name, c.CRS, c.AttributeColumns(), nil, 0)
	}
	observability.ObserveFilterMatches(label, out.Len())
	return out
}

func pickColumn(ds catalog.Dataset, coll *dataset.Collection, want string) (string, error) {
	cols := ds.Columns(coll)
	if want == "" {
		if len(cols) == 0 {
			return "", fmt.Errorf("%w: dataset %s has no selectable columns", model.ErrInvalidRequest, ds.Key)
		}
		return cols[0], nil
	}
	for _, c := range cols {
		if c == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown column %q for dataset %s", model.ErrInvalidRequest, want, ds.Key)
}

func pointsOf(c *dataset.Collection) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, r := range c.Records {
		if r.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(c.Centroid(i))
		f.Properties["row"] = r.Row
		fc.Append(f)
	}
	return fc
}

func tableOf(c *dataset.Collection) *model.Table {
	cols := c.AttributeColumns()
	t := &model.Table{
		Columns: append(append([]string(nil), cols...), "geometry"),
		Rows:    make([][]any, 0, c.Len()),
	}
	for _, r := range c.Records {
		row := make([]any, len(cols)+1)
		copy(row[:len(cols)], r.Values)
		if r.Geometry != nil {
			row[len(cols)] = wkt.MarshalString(r.Geometry)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
