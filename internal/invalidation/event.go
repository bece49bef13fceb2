// Package invalidation describes cache flush events. A flush moves the
// targeted caches to the epoch carried by the event, so every replica that
// sees the same event ends up reading and writing the same backend keys.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

const (
	LayerMemo  = "memo"
	LayerFetch = "fetch"
	LayerAll   = "all"
)

type Event struct {
	Version int       `json:"version"`
	Layer   string    `json:"layer"`
	TS      time.Time `json:"ts"`
	Reason  string    `json:"reason,omitempty"`
	// Area, when set, also clears the request heat around that point.
	Area *Area `json:"area,omitempty"`
}

type Area struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch strings.ToLower(strings.TrimSpace(e.Layer)) {
	case LayerMemo, LayerFetch, LayerAll:
	default:
		return fmt.Errorf("layer must be memo|fetch|all")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if a := e.Area; a != nil {
		if !(a.Lat >= -90 && a.Lat <= 90) || !(a.Lon >= -180 && a.Lon <= 180) {
			return fmt.Errorf("area out of range")
		}
	}
	return nil
}

// Epoch is the cache epoch the event moves to.
func (e Event) Epoch() int64 { return e.TS.UnixMilli() }

// Targets reports whether the event flushes the named cache layer.
func (e Event) Targets(layer string) bool {
	l := strings.ToLower(strings.TrimSpace(e.Layer))
	return l == LayerAll || l == layer
}
