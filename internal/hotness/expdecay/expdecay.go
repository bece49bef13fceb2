// Package expdecay implements an exponential decay model for hotness scores.
package expdecay

import (
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness"
)

const numShards = 64

type Tracker struct {
	HalfLife time.Duration

	clock clockwork.Clock

	shards [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*counter
}

type counter struct {
	score float64
	last  time.Time
}

var _ hotness.Interface = (*Tracker)(nil)

func New(halfLife time.Duration, clock clockwork.Clock) *Tracker {
	if halfLife <= 0 {
		halfLife = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{HalfLife: halfLife, clock: clock}
	for i := range t.shards {
		t.shards[i].m = make(map[string]*counter)
	}
	return t
}

func (t *Tracker) Inc(area string) {
	if area == "" {
		return
	}
	s := t.pick(area)
	n := t.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.m[area]
	if c == nil {
		s.m[area] = &counter{score: 1, last: n}
		return
	}
	dt := n.Sub(c.last).Seconds()
	// decay the existing score before incrementing
	c.score = decay(c.score, dt, t.HalfLife.Seconds()) + 1.0
	c.last = n
}

func (t *Tracker) Score(area string) float64 {
	if area == "" {
		return 0
	}
	s := t.pick(area)
	n := t.clock.Now()

	s.mu.RLock()
	c := s.m[area]
	if c == nil {
		s.mu.RUnlock()
		return 0
	}
	score, last := c.score, c.last
	s.mu.RUnlock()

	return decay(score, n.Sub(last).Seconds(), t.HalfLife.Seconds())
}

func (t *Tracker) Reset(areas ...string) {
	for _, area := range areas {
		if area == "" {
			continue
		}
		s := t.pick(area)
		s.mu.Lock()
		delete(s.m, area)
		s.mu.Unlock()
	}
}

// Prune forgets areas whose decayed score fell below floor and returns how
// many were removed.
func (t *Tracker) Prune(floor float64) int {
	n := t.clock.Now()
	hl := t.HalfLife.Seconds()
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, c := range s.m {
			if decay(c.score, n.Sub(c.last).Seconds(), hl) < floor {
				delete(s.m, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Above counts areas whose current score is at least threshold.
func (t *Tracker) Above(threshold float64) int {
	n := t.clock.Now()
	hl := t.HalfLife.Seconds()
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for _, c := range s.m {
			if decay(c.score, n.Sub(c.last).Seconds(), hl) >= threshold {
				total++
			}
		}
		s.mu.RUnlock()
	}
	return total
}

func decay(score, dt, halfLife float64) float64 {
	if score == 0 || dt <= 0 || halfLife <= 0 {
		return score
	}
	lambda := math.Ln2 / halfLife
	return score * math.Exp(-lambda*dt)
}

func (t *Tracker) pick(area string) *shard {
	h := xxhash.Sum64String(area)
	idx := h & (uint64(len(t.shards)) - 1)
	return &t.shards[idx]
}

func (t *Tracker) Size() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].m)
		t.shards[i].mu.RUnlock()
	}
	return total
}
