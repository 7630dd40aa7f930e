package simple

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chomoku/kyoto-hexmap/internal/core/model"
	"github.com/chomoku/kyoto-hexmap/internal/hotness"
	"github.com/chomoku/kyoto-hexmap/internal/hotness/expdecay"
)

type fakeHot struct {
	mu sync.Mutex
	m  map[string]float64
}

func newFakeHot() *fakeHot { return &fakeHot{m: make(map[string]float64)} }

func (f *fakeHot) Inc(key string) {
	f.mu.Lock()
	f.m[key]++
	f.mu.Unlock()
}

func (f *fakeHot) Score(key string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[key]
}

func (f *fakeHot) Reset(keys ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.m, k)
	}
}

var _ hotness.Interface = (*fakeHot)(nil)

func areaReq(lon, lat float64) model.RenderRequest {
	return model.RenderRequest{Dataset: "suikei", TradeArea: &model.TradeAreaParams{Lon: lon, Lat: lat, RadiusM: 1000}}
}

func TestShouldCache_AdmitsAfterThreshold(t *testing.T) {
	h := newFakeHot()
	e := &Engine{Hot: h, Threshold: 2, Res: 8}

	req := areaReq(135.7681, 35.0116)
	e.Observe(req)
	if e.ShouldCache(req) {
		t.Fatal("one request must not admit")
	}
	e.Observe(areaReq(135.7681, 35.0116))
	if !e.ShouldCache(req) {
		t.Fatal("expected admission once the center cell is hot")
	}
	if e.ShouldCache(areaReq(135.60, 34.90)) {
		t.Fatal("a cold cell must not be admitted")
	}
}

func TestShouldCache_NoTradeAreaOrNoThreshold(t *testing.T) {
	e := &Engine{Hot: newFakeHot(), Threshold: 5, Res: 8}
	if !e.ShouldCache(model.RenderRequest{Dataset: "suikei"}) {
		t.Fatal("plain renders are always admitted")
	}
	open := &Engine{Res: 8}
	if !open.ShouldCache(areaReq(135.7681, 35.0116)) {
		t.Fatal("zero threshold admits everything")
	}
	open.Observe(areaReq(135.7681, 35.0116))
}

func TestObserve_IgnoresBadResolution(t *testing.T) {
	h := newFakeHot()
	e := &Engine{Hot: h, Threshold: 1, Res: 99}
	e.Observe(areaReq(135.7681, 35.0116))
	if len(h.m) != 0 {
		t.Fatalf("unexpected keys %v", h.m)
	}
	if e.ShouldCache(areaReq(135.7681, 35.0116)) {
		t.Fatal("no key, no admission")
	}
}

func TestShouldCache_QuickHitsReachThreshold(t *testing.T) {
	e := &Engine{Hot: expdecay.New(time.Minute), Threshold: 3, Res: 8}
	req := areaReq(135.7681, 35.0116)
	for range 3 {
		e.Observe(req)
	}
	if !e.ShouldCache(req) {
		t.Fatalf("three hits must reach a threshold of 3; score=%v", e.Hot.Score(e.centerKey(req)))
	}
}

func TestShouldCache_HotnessIsPerDataset(t *testing.T) {
	h := newFakeHot()
	e := &Engine{Hot: h, Threshold: 2, Res: 8}

	suikei := areaReq(135.7681, 35.0116)
	e.Observe(suikei)
	e.Observe(suikei)

	kokusei := areaReq(135.7681, 35.0116)
	kokusei.Dataset = "kokusei"
	if !e.ShouldCache(suikei) {
		t.Fatal("center is hot for suikei")
	}
	if e.ShouldCache(kokusei) {
		t.Fatal("a center hot on one dataset must not admit another dataset")
	}
	for k := range h.m {
		if !strings.HasPrefix(k, "suikei:") {
			t.Fatalf("key %q is not scoped to its dataset", k)
		}
	}
}
