// Package aggregate normalizes raw feed records into events, drops
// duplicates and orders the survivors by recency.
package aggregate

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
)

// Normalize maps a raw record to an Event. Each attribute takes the first
// non-empty value of its fallback chain.
func Normalize(r feeds.Record) model.Event {
	e := model.Event{
		Source:      model.Source(first(r.Source, r.Type, string(model.SourceUnknown))),
		Type:        first(r.Type, r.Source, "event"),
		Title:       first(r.Title, r.Place, r.Headline, "Event"),
		Description: first(r.Description, r.Headline),
		Time:        first(r.Time, r.Onset, r.Date),
		Lat:         r.Lat,
		Lon:         r.Lon,
		URL:         first(r.URL, rawURL(r.Raw)),
		Mag:         magnitude(r.Mag, r.Magnitude),
		Place:       r.Place,
		Raw:         r.Raw,
	}
	if e.Raw == nil {
		e.Raw = r
	}
	e.ID = Identity(e)
	return e
}

// Identity is the dedup key: the URL when present, else title|time.
func Identity(e model.Event) string {
	if e.URL != "" {
		return e.URL
	}
	return e.Title + "|" + e.Time
}

// Dedupe keeps the first event of every identity, preserving input order.
func Dedupe(events []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		id := e.ID
		if id == "" {
			id = Identity(e)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Merge normalizes records in order and deduplicates the result.
func Merge(records []feeds.Record) []model.Event {
	events := make([]model.Event, 0, len(records))
	for _, r := range records {
		events = append(events, Normalize(r))
	}
	return Dedupe(events)
}

// SortByRecency orders events newest first. Missing or unparseable times
// count as the epoch; ties keep their input order.
func SortByRecency(events []model.Event) {
	slices.SortStableFunc(events, func(a, b model.Event) int {
		ta, tb := timeKey(a.Time), timeKey(b.Time)
		switch {
		case ta > tb:
			return -1
		case ta < tb:
			return 1
		default:
			return 0
		}
	})
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeKey(s string) int64 {
	if s == "" {
		return 0
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UnixNano()
		}
	}
	return 0
}

func rawURL(raw any) string {
	switch v := raw.(type) {
	case map[string]any:
		s, _ := v["url"].(string)
		return s
	case json.RawMessage:
		var m struct {
			URL string `json:"url"`
		}
		if json.Unmarshal(v, &m) == nil {
			return m.URL
		}
	}
	return ""
}

func magnitude(mag, alt *float64) *float64 {
	if mag != nil && *mag != 0 {
		return mag
	}
	if alt != nil {
		return alt
	}
	return mag
}

func first(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
