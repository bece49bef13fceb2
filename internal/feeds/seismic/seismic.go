// Package seismic adapts the USGS FDSN event service (GeoJSON) to feeds.
package seismic

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	Name         = "seismic"
	defaultLimit = 50
	ttl          = 300 * time.Second
	isoMillis    = "2006-01-02T15:04:05.000Z"
)

type Adapter struct {
	baseURL string
	get     fetch.Getter
	clock   clockwork.Clock
	limit   int
}

var _ feeds.Adapter = (*Adapter)(nil)

func New(baseURL string, get fetch.Getter, clock clockwork.Clock) *Adapter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Adapter{baseURL: baseURL, get: get, clock: clock, limit: defaultLimit}
}

func (a *Adapter) Name() string { return Name }

// URL builds the bounded event query for q.
func (a *Adapter) URL(q feeds.Query) string {
	start := a.clock.Now().UTC().AddDate(0, 0, -q.LookbackDays).Format("2006-01-02")
	v := url.Values{}
	v.Set("format", "geojson")
	v.Set("latitude", strconv.FormatFloat(q.Lat, 'f', -1, 64))
	v.Set("longitude", strconv.FormatFloat(q.Lon, 'f', -1, 64))
	v.Set("maxradiuskm", strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	v.Set("starttime", start)
	v.Set("limit", strconv.Itoa(a.limit))
	return a.baseURL + "?" + v.Encode()
}

type collection struct {
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	Properties struct {
		Mag   *float64 `json:"mag"`
		Place string   `json:"place"`
		Time  *int64   `json:"time"`
		URL   string   `json:"url"`
	} `json:"properties"`
	Geometry *struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

func (a *Adapter) Fetch(ctx context.Context, q feeds.Query) feeds.Result {
	var fc collection
	if err := a.get.GetJSON(ctx, a.URL(q), ttl, &fc, fetch.WithUpstream("usgs")); err != nil {
		return feeds.Unavailable(Name, err)
	}
	feats := fc.Features
	if len(feats) > a.limit {
		feats = feats[:a.limit]
	}
	out := make([]feeds.Record, 0, len(feats))
	for _, raw := range feats {
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		out = append(out, toRecord(f, raw))
	}
	return feeds.Ok(Name, out)
}

func toRecord(f feature, raw json.RawMessage) feeds.Record {
	p := f.Properties
	r := feeds.Record{
		Source: string(model.SourceSeismic),
		Type:   "earthquake",
		Title:  title(p.Mag, p.Place),
		Place:  p.Place,
		Mag:    p.Mag,
		URL:    p.URL,
		Raw:    raw,
	}
	if p.Time != nil && *p.Time != 0 {
		r.Time = time.UnixMilli(*p.Time).UTC().Format(isoMillis)
	}
	if f.Geometry != nil {
		c := f.Geometry.Coordinates
		if len(c) > 1 {
			r.Lon = model.Float(c[0])
			r.Lat = model.Float(c[1])
		}
	}
	return r
}

func title(mag *float64, place string) string {
	switch {
	case mag != nil && *mag != 0 && place != "":
		return "M " + strconv.FormatFloat(*mag, 'f', -1, 64) + " - " + place
	case place != "":
		return place
	default:
		return "Earthquake"
	}
}
