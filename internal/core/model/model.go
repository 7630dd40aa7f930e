// Package model defines the request and result types shared by the render
// pipeline, the HTTP layer and the result cache.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb/geojson"
)

var ErrInvalidRequest = errors.New("invalid request")

// TradeAreaParams describes an area around a center in display coordinates.
type TradeAreaParams struct {
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
	RadiusM float64 `json:"radius_m"`
	Policy  string  `json:"policy,omitempty"`
}

type RenderRequest struct {
	Dataset        string           `json:"dataset"`
	Column         string           `json:"column,omitempty"`
	Bins           int              `json:"bins,omitempty"`
	ShowFacilities bool             `json:"show_facilities,omitempty"`
	TradeArea      *TradeAreaParams `json:"trade_area,omitempty"`
	ShowData       bool             `json:"show_data,omitempty"`
	ShowSources    bool             `json:"show_sources,omitempty"`
	TopN           int              `json:"top_n,omitempty"`
}

func (r RenderRequest) Validate() error {
	if r.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", ErrInvalidRequest)
	}
	if r.Bins < 0 {
		return fmt.Errorf("%w: bins must be >= 0", ErrInvalidRequest)
	}
	if r.TopN < 0 {
		return fmt.Errorf("%w: top_n must be >= 0", ErrInvalidRequest)
	}
	if ta := r.TradeArea; ta != nil {
		for name, v := range map[string]float64{"lon": ta.Lon, "lat": ta.Lat, "radius_m": ta.RadiusM} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s must be finite", ErrInvalidRequest, name)
			}
		}
		if ta.RadiusM <= 0 {
			return fmt.Errorf("%w: radius_m must be > 0", ErrInvalidRequest)
		}
	}
	return nil
}

type ChartOptions struct {
	Opacity    float64 `json:"opacity"`
	ColorScale string  `json:"color_scale"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Aggregate  string  `json:"aggregate"`
	CenterLon  float64 `json:"center_lon"`
	CenterLat  float64 `json:"center_lat"`
}

// DefaultChart matches the dashboard's hexbin figure.
func DefaultChart() ChartOptions {
	return ChartOptions{
		Opacity:    0.4,
		ColorScale: "Viridis",
		Width:      1200,
		Height:     800,
		Aggregate:  "mean",
	}
}

type Overlay struct {
	Label   string                     `json:"label"`
	Color   string                     `json:"color"`
	Opacity float64                    `json:"opacity"`
	Points  *geojson.FeatureCollection `json:"points"`
}

type TradeAreaOverlay struct {
	Center     [2]float64       `json:"center"`
	RadiusM    float64          `json:"radius_m"`
	Policy     string           `json:"policy"`
	Boundary   *geojson.Feature `json:"boundary"`
	Cells      []string         `json:"cells,omitempty"`
	Tiles      int              `json:"tiles"`
	Facilities int              `json:"facilities"`
}

// Table is a row-oriented dump of a filtered collection; geometry is WKT.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type TallyEntry struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type RenderResult struct {
	Dataset      string                     `json:"dataset"`
	Label        string                     `json:"label"`
	Column       string                     `json:"column"`
	Bins         int                        `json:"bins"`
	Resolution   int                        `json:"resolution"`
	HexEdgeM     float64                    `json:"hex_edge_m"`
	Hexbins      *geojson.FeatureCollection `json:"hexbins"`
	Chart        ChartOptions               `json:"chart"`
	Facilities   *Overlay                   `json:"facilities,omitempty"`
	TradeArea    *TradeAreaOverlay          `json:"trade_area,omitempty"`
	Data         *Table                     `json:"data,omitempty"`
	FacilityData *Table                     `json:"facility_data,omitempty"`
	Tally        []TallyEntry               `json:"tally,omitempty"`
	TallySkipped int                        `json:"tally_skipped,omitempty"`
	Attribution  []string                   `json:"attribution,omitempty"`
	Warnings     []string                   `json:"warnings,omitempty"`
}
