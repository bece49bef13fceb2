package simple

import (
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/mapper"
	h3mapper "github.com/mohammed-shakir/hazard-aggregator/internal/mapper/h3"
	"github.com/mohammed-shakir/hazard-aggregator/pkg/adaptive"
)

type Config struct {
	Threshold float64
	BaseRes   int
	TTLCold   time.Duration
	TTLWarm   time.Duration
	TTLHot    time.Duration
}

type SimpleDecider struct {
	cfg    Config
	mapper mapper.Interface
}

var _ adaptive.Decider = (*SimpleDecider)(nil)

func New(cfg Config, m mapper.Interface) *SimpleDecider {
	if m == nil {
		m = h3mapper.New()
	}
	return &SimpleDecider{cfg: cfg, mapper: m}
}

func (d *SimpleDecider) Decide(q adaptive.Query, view adaptive.HotnessView) (adaptive.Decision, adaptive.Reason) {
	cold := adaptive.Decision{Tier: adaptive.TierCold, Resolution: q.BaseRes, TTL: d.cfg.TTLCold}
	if len(q.Cells) == 0 || view == nil || d.cfg.Threshold <= 0 {
		return cold, adaptive.ReasonColdAllCells
	}

	maxScore := 0.0
	for _, c := range q.Cells {
		if s := view.Score(c); s > maxScore {
			maxScore = s
		}
	}

	if maxScore < d.cfg.Threshold {
		// a busy region lifts its quieter cells to the warm band
		if d.parentHot(q, view) && d.cfg.TTLWarm > 0 {
			return adaptive.Decision{Tier: adaptive.TierWarm, Resolution: q.BaseRes - 1, TTL: d.cfg.TTLWarm},
				adaptive.ReasonCoarserParentHot
		}
		return cold, adaptive.ReasonColdAllCells
	}

	dec := adaptive.Decision{Resolution: q.BaseRes}
	switch {
	case maxScore >= 4*d.cfg.Threshold && d.cfg.TTLHot > 0:
		dec.Tier, dec.TTL = adaptive.TierHot, d.cfg.TTLHot
	case d.cfg.TTLWarm > 0:
		dec.Tier, dec.TTL = adaptive.TierWarm, d.cfg.TTLWarm
	default:
		dec.Tier, dec.TTL = adaptive.TierCold, d.cfg.TTLCold
	}
	return dec, adaptive.ReasonDefaultFill
}

func (d *SimpleDecider) parentHot(q adaptive.Query, view adaptive.HotnessView) bool {
	if q.BaseRes <= 0 {
		return false
	}
	for _, c := range q.Cells {
		p, err := d.mapper.ToParent(c, q.BaseRes-1)
		if err != nil {
			continue
		}
		if view.Score(p) >= 2*d.cfg.Threshold {
			return true
		}
	}
	return false
}
