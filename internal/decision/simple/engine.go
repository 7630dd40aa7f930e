package simple

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/decision"
	"github.com/chomoku/kyoto-hexmap/internal/hotness"
	h3mapper "github.com/chomoku/kyoto-hexmap/internal/mapper/h3"
)

// Engine admits renders without a trade area unconditionally and trade-area
// renders once their center cell is hot for the requested dataset. A zero
// Threshold admits everything.
type Engine struct {
	Hot       hotness.Interface
	Threshold float64
	// Res is the H3 resolution center points are bucketed at.
	Res int
}

var _ decision.Interface = (*Engine)(nil)

func (e *Engine) Observe(req model.RenderRequest) {
	if e.Hot == nil {
		return
	}
	if key := e.centerKey(req); key != "" {
		e.Hot.Inc(key)
	}
}

func (e *Engine) ShouldCache(req model.RenderRequest) bool {
	if req.TradeArea == nil || e.Threshold <= 0 {
		return true
	}
	if e.Hot == nil {
		return false
	}
	key := e.centerKey(req)
	return key != "" && hotness.Reached(e.Hot.Score(key), e.Threshold)
}

func (e *Engine) centerKey(req model.RenderRequest) string {
	if req.TradeArea == nil || req.Dataset == "" {
		return ""
	}
	cell, err := h3mapper.CellAt(orb.Point{req.TradeArea.Lon, req.TradeArea.Lat}, e.Res)
	if err != nil {
		return ""
	}
	return hotness.Key(req.Dataset, cell)
}

type pruner interface {
	Prune(floor float64) int
}

// RunPruner drops cold keys every interval until ctx is done. It returns at
// once when Hot cannot prune.
func (e *Engine) RunPruner(ctx context.Context, every time.Duration) {
	p, ok := e.Hot.(pruner)
	if !ok || every <= 0 {
		return
	}
	floor := e.Threshold / 100
	if floor <= 0 {
		floor = 0.01
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Prune(floor)
		}
	}
}
