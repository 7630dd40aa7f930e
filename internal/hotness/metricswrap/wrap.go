// Package metricswrap reports hotness tracker size and logs keys that turn
// hot.
package metricswrap

import (
	"fmt"
	"log/slog"

	xx "github.com/cespare/xxhash/v2"

	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/hotness"
)

type Sizer interface{ Size() int }

type WithMetrics struct {
	inner     hotness.Interface
	logger    *slog.Logger
	threshold float64
	logSample float64
}

// New wraps inner. Keys reaching threshold are logged for a logSample
// fraction of keys; threshold <= 0 disables the log line.
func New(inner hotness.Interface, logger *slog.Logger, threshold, logSample float64) *WithMetrics {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &WithMetrics{inner: inner, logger: logger, threshold: threshold, logSample: logSample}
}

func (w *WithMetrics) Inc(key string) {
	w.inner.Inc(key)
	if w.threshold > 0 {
		score := w.inner.Score(key)
		if hotness.Reached(score, w.threshold) && shouldLog(w.logSample, key) {
			w.logger.Info("hot trade-area center",
				"event", "hotness_threshold",
				"dataset", hotness.DatasetOf(key),
				"score", score,
				"key_hash", fmt.Sprintf("%08x", xx.Sum64String(key)))
		}
	}
	w.report()
}

func (w *WithMetrics) Score(key string) float64 {
	return w.inner.Score(key)
}

func (w *WithMetrics) Reset(keys ...string) {
	w.inner.Reset(keys...)
	w.report()
}

func (w *WithMetrics) report() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotKeys(s.Size())
	}
}

// shouldLog samples by key hash so one key is either always or never logged.
func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	return xx.Sum64String(key)%denom < threshold
}

// ForgetDataset forwards to the wrapped tracker when it can drop keys by
// dataset.
func (w *WithMetrics) ForgetDataset(dataset string) int {
	f, ok := w.inner.(interface{ ForgetDataset(string) int })
	if !ok {
		return 0
	}
	n := f.ForgetDataset(dataset)
	w.report()
	return n
}

// Prune forwards to the wrapped tracker when it supports pruning.
func (w *WithMetrics) Prune(floor float64) int {
	p, ok := w.inner.(interface{ Prune(float64) int })
	if !ok {
		return 0
	}
	n := p.Prune(floor)
	w.report()
	return n
}
