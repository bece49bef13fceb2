// Package metricswrap wraps hotness calculations with Prometheus metrics.
package metricswrap

import (
	"fmt"
	"log/slog"

	xx "github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness"
)

type Sizer interface{ Size() int }

type Counter interface {
	Above(threshold float64) int
}

type Options struct {
	// Threshold is the warm score; hot starts at four times it.
	Threshold float64
	// LogSample is the fraction of threshold crossings that get logged.
	LogSample float64
	Logger    *slog.Logger
}

type WithMetrics struct {
	inner hotness.Interface
	opts  Options
}

var _ hotness.Interface = (*WithMetrics)(nil)

func New(inner hotness.Interface, opts Options) *WithMetrics {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WithMetrics{inner: inner, opts: opts}
}

func (w *WithMetrics) Inc(area string) {
	w.inner.Inc(area)
	if w.opts.Threshold > 0 {
		score := w.inner.Score(area)
		if score >= w.opts.Threshold && shouldLog(w.opts.LogSample, area) {
			w.opts.Logger.Info("hot area above threshold",
				"event", "hotness_threshold",
				"score", score,
				"area_hash", fmt.Sprintf("%08x", xx.Sum64String(area)))
		}
	}
	w.publish()
}

func (w *WithMetrics) Score(area string) float64 {
	return w.inner.Score(area)
}

func (w *WithMetrics) Reset(areas ...string) {
	w.inner.Reset(areas...)
	w.publish()
}

func (w *WithMetrics) publish() {
	if s, ok := w.inner.(Sizer); ok {
		observability.SetHotAreas("tracked", s.Size())
	}
	if c, ok := w.inner.(Counter); ok && w.opts.Threshold > 0 {
		observability.SetHotAreas("warm", c.Above(w.opts.Threshold))
		observability.SetHotAreas("hot", c.Above(4*w.opts.Threshold))
	}
}

func shouldLog(sample float64, key string) bool {
	if sample <= 0 {
		return false
	}
	if sample >= 1 {
		return true
	}
	const denom = 10000 // 0.01 => 100/10000
	threshold := uint64(sample*denom + 0.5)
	if threshold == 0 {
		return false
	}
	h := xx.Sum64String(key)
	return (h % denom) < threshold
}
