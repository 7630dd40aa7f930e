// Package variants holds the dashboard presets. A variant decides which
// controls the UI shows and how a trade area is built when one is requested.
package variants

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/chomoku/kyoto-hexmap/internal/core/config"
	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/geo/tradearea"
	h3mapper "github.com/chomoku/kyoto-hexmap/internal/mapper/h3"
)

const Fallback = "basic"

type Slider struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
	Value float64 `json:"value"`
}

type Controls struct {
	Variant     string   `json:"variant"`
	Bins        Slider   `json:"bins"`
	Facilities  bool     `json:"facilities"`
	TradeArea   bool     `json:"trade_area"`
	Policy      string   `json:"policy,omitempty"`
	Sliders     []Slider `json:"sliders,omitempty"`
	ShowData    bool     `json:"show_data"`
	ShowSources bool     `json:"show_sources"`
	TopN        int      `json:"top_n,omitempty"`
}

type Variant struct {
	Name     string
	Controls Controls
}

// Apply clamps a request to what the variant offers. Features the variant
// does not expose are switched off and reported as warnings.
func (v Variant) Apply(req model.RenderRequest) (model.RenderRequest, []string) {
	var warns []string
	c := v.Controls

	if req.Bins == 0 {
		req.Bins = int(c.Bins.Value)
	}
	req.Bins = h3mapper.ClampBins(req.Bins)

	if req.ShowFacilities && !c.Facilities {
		warns = append(warns, fmt.Sprintf("variant %s has no facility overlay", v.Name))
		req.ShowFacilities = false
	}
	if req.TradeArea != nil {
		if !c.TradeArea {
			warns = append(warns, fmt.Sprintf("variant %s has no trade area", v.Name))
			req.TradeArea = nil
		} else {
			ta := *req.TradeArea
			if ta.Policy == "" {
				ta.Policy = c.Policy
			}
			req.TradeArea = &ta
		}
	}
	if req.TopN == 0 {
		req.TopN = c.TopN
	}
	return req, warns
}

type Factory func(cfg config.Config) Variant

var (
	mu  sync.RWMutex
	reg = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	reg[name] = f
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func New(name string, cfg config.Config, logger *slog.Logger) (Variant, error) {
	mu.RLock()
	f, ok := reg[name]
	fb, hasFallback := reg[Fallback]
	mu.RUnlock()

	if ok {
		return f(cfg), nil
	}
	if hasFallback {
		logger.Warn("unknown variant; falling back to basic", "variant", name)
		return fb(cfg), nil
	}
	return Variant{}, fmt.Errorf("no factory for variant %q and no %s registered", name, Fallback)
}

func init() {
	Register("basic", basic)
	Register("facility", facility)
	Register("tradearea-rect", func(cfg config.Config) Variant {
		return tradeArea("tradearea-rect", tradearea.PolicyRect, 0.01, cfg)
	})
	Register("tradearea-circle", func(cfg config.Config) Variant {
		return tradeArea("tradearea-circle", tradearea.PolicyCircle, 0.001, cfg)
	})
}

func binsSlider() Slider {
	return Slider{
		Name: "bins", Label: "地域区分け数",
		Min: h3mapper.MinBins, Max: h3mapper.MaxBins, Step: 1, Value: h3mapper.DefaultBins,
	}
}

func basic(_ config.Config) Variant {
	return Variant{Name: "basic", Controls: Controls{
		Variant:     "basic",
		Bins:        binsSlider(),
		ShowData:    true,
		ShowSources: true,
	}}
}

func facility(_ config.Config) Variant {
	v := basic(config.Config{})
	v.Name = "facility"
	v.Controls.Variant = "facility"
	v.Controls.Facilities = true
	return v
}

// tradeArea builds the trade-area presets. The rect preset keeps a 0.01°
// latitude step next to a 0.001° longitude step.
func tradeArea(name string, policy tradearea.Policy, latStep float64, cfg config.Config) Variant {
	v := facility(cfg)
	v.Name = name
	v.Controls.Variant = name
	v.Controls.TradeArea = true
	v.Controls.Policy = string(policy)
	v.Controls.TopN = cfg.TallyTopN
	if v.Controls.TopN <= 0 {
		v.Controls.TopN = 10
	}
	v.Controls.Sliders = []Slider{
		{Name: "lon", Label: "中心経度", Min: 135.56, Max: 135.88, Step: 0.001, Value: 135.7681},
		{Name: "lat", Label: "中心緯度", Min: 34.88, Max: 35.32, Step: latStep, Value: 35.0116},
		{Name: "radius_m", Label: "半径（m）", Min: 100, Max: 10000, Step: 100, Value: 1000},
	}
	return v
}
