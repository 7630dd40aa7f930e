// Package router turns HTTP requests into render and trade-area calls.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chomoku/kyoto-hexmap/internal/catalog"
	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/geo/tradearea"
	"github.com/chomoku/kyoto-hexmap/internal/render"
	"github.com/chomoku/kyoto-hexmap/internal/variants"
)

// AreaBuilder builds a single trade area with the service's CRS settings.
type AreaBuilder interface {
	BuildTradeArea(p model.TradeAreaParams) (tradearea.TradeArea, error)
}

// API bundles the handlers mounted under /api.
type API struct {
	Logger   *slog.Logger
	Variant  variants.Variant
	Renderer render.Renderer
	Catalog  catalog.Catalog
	Source   render.DatasetSource
	Areas    AreaBuilder
}

func (a API) Mount(r chi.Router) {
	r.Get("/render", HandleRender(a.Logger, a.Variant, a.Renderer))
	r.Get("/datasets", HandleDatasets(a.Catalog))
	r.Get("/datasets/{key}/columns", HandleColumns(a.Logger, a.Catalog, a.Source))
	r.Get("/controls", HandleControls(a.Variant))
	r.Post("/tradearea", HandleTradeArea(a.Logger, a.Variant, a.Areas))
}

// HandleRender parses the dashboard controls, clamps them to the variant and
// renders the map payload.
func HandleRender(logger *slog.Logger, v variants.Variant, rd render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, warn, err := ParseRenderRequest(r)
		if warn != "" {
			logger.WarnContext(r.Context(), warn)
		}
		if err != nil {
			writeError(w, logger, r, err)
			return
		}

		req, warns := v.Apply(req)
		res, err := rd.Render(r.Context(), req)
		if err != nil {
			writeError(w, logger, r, err)
			return
		}
		if warn != "" {
			warns = append(warns, warn)
		}
		res.Warnings = append(warns, res.Warnings...)
		writeJSON(w, http.StatusOK, res)
	}
}

type datasetInfo struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type datasetList struct {
	Datasets   []datasetInfo `json:"datasets"`
	Facilities string        `json:"facilities,omitempty"`
}

func HandleDatasets(cat catalog.Catalog) http.HandlerFunc {
	out := datasetList{Facilities: cat.Facilities.Label}
	for _, d := range cat.Datasets {
		out.Datasets = append(out.Datasets, datasetInfo{Key: d.Key, Label: d.Label})
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleColumns lists the selectable columns of one dataset. It loads the
// dataset through src, so the first call for a file pays the read.
func HandleColumns(logger *slog.Logger, cat catalog.Catalog, src render.DatasetSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		ds, ok := cat.Dataset(key)
		if !ok {
			writeError(w, logger, r, fmt.Errorf("%w: %q", render.ErrUnknownDataset, key))
			return
		}
		coll, err := src.Get(r.Context(), ds.Path)
		if err != nil {
			writeError(w, logger, r, fmt.Errorf("load %s: %w", ds.Key, err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"dataset": ds.Key,
			"columns": ds.Columns(coll),
		})
	}
}

func HandleControls(v variants.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, v.Controls)
	}
}

// HandleTradeArea builds a trade area from a JSON body and returns it as a
// GeoJSON feature.
func HandleTradeArea(logger *slog.Logger, v variants.Variant, b AreaBuilder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !v.Controls.TradeArea {
			http.Error(w, "trade area is not enabled for variant "+v.Name, http.StatusNotFound)
			return
		}
		var p model.TradeAreaParams
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			writeError(w, logger, r, fmt.Errorf("%w: decode body: %v", model.ErrInvalidRequest, err))
			return
		}
		if p.Policy == "" {
			p.Policy = v.Controls.Policy
		}
		check := model.RenderRequest{Dataset: "-", TradeArea: &p}
		if err := check.Validate(); err != nil {
			writeError(w, logger, r, err)
			return
		}
		ta, err := b.BuildTradeArea(p)
		if err != nil {
			writeError(w, logger, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ta.Feature())
	}
}

// ParseRenderRequest reads the query string of GET /api/render. A trade area
// is only built when lon, lat and radius_m are all present.
func ParseRenderRequest(r *http.Request) (model.RenderRequest, string, error) {
	q := r.URL.Query()
	var warn string

	req := model.RenderRequest{
		Dataset: strings.TrimSpace(q.Get("dataset")),
		Column:  strings.TrimSpace(q.Get("column")),
	}
	if req.Dataset == "" {
		return model.RenderRequest{}, "", fmt.Errorf("%w: missing required parameter: dataset", model.ErrInvalidRequest)
	}

	var err error
	if req.Bins, err = intParam(q.Get("bins"), "bins"); err != nil {
		return model.RenderRequest{}, "", err
	}
	if req.TopN, err = intParam(q.Get("top"), "top"); err != nil {
		return model.RenderRequest{}, "", err
	}
	for name, dst := range map[string]*bool{
		"facilities": &req.ShowFacilities,
		"data":       &req.ShowData,
		"sources":    &req.ShowSources,
	} {
		if *dst, err = boolParam(q.Get(name), name); err != nil {
			return model.RenderRequest{}, "", err
		}
	}

	rawLon, rawLat, rawRadius := q.Get("lon"), q.Get("lat"), q.Get("radius_m")
	set := 0
	for _, s := range []string{rawLon, rawLat, rawRadius} {
		if strings.TrimSpace(s) != "" {
			set++
		}
	}
	switch {
	case set == 0:
		if q.Get("policy") != "" {
			warn = "policy given without lon, lat and radius_m; ignoring"
		}
	case set < 3:
		return model.RenderRequest{}, "", fmt.Errorf("%w: trade area needs lon, lat and radius_m", model.ErrInvalidRequest)
	default:
		ta := &model.TradeAreaParams{Policy: strings.TrimSpace(q.Get("policy"))}
		if ta.Lon, err = floatParam(rawLon, "lon"); err != nil {
			return model.RenderRequest{}, "", err
		}
		if ta.Lat, err = floatParam(rawLat, "lat"); err != nil {
			return model.RenderRequest{}, "", err
		}
		if ta.RadiusM, err = floatParam(rawRadius, "radius_m"); err != nil {
			return model.RenderRequest{}, "", err
		}
		req.TradeArea = ta
	}

	if err := req.Validate(); err != nil {
		return model.RenderRequest{}, warn, err
	}
	return req, warn, nil
}

func intParam(v, name string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrInvalidRequest, name, err)
	}
	return n, nil
}

func floatParam(v, name string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", model.ErrInvalidRequest, name, err)
	}
	return f, nil
}

func boolParam(v, name string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", model.ErrInvalidRequest, name, err)
	}
	return b, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest),
		errors.Is(err, tradearea.ErrInvalidGeometry),
		errors.Is(err, tradearea.ErrProjection):
		return http.StatusBadRequest
	case errors.Is(err, render.ErrUnknownDataset):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
