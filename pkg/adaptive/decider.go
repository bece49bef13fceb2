// Package adaptive decides how long results for an area stay memoized based
// on how often that area is requested.
package adaptive

import "time"

type HotnessView interface {
	Score(area string) float64
}

type Query struct {
	Cells   []string
	BaseRes int
}

type Tier string

const (
	TierCold Tier = "cold"
	TierWarm Tier = "warm"
	TierHot  Tier = "hot"
)

type Reason string

const (
	ReasonColdAllCells     Reason = "cold_all_cells"
	ReasonDefaultFill      Reason = "default_fill"
	ReasonCoarserParentHot Reason = "coarser_parent_hot"
)

type Decision struct {
	Tier       Tier
	Resolution int
	TTL        time.Duration
}

type Decider interface {
	Decide(q Query, view HotnessView) (Decision, Reason)
}
