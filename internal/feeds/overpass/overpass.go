// Package overpass searches OpenStreetMap points of interest through an
// Overpass API interpreter.
package overpass

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

type Client struct {
	baseURL string
	get     fetch.Getter
	timeout time.Duration
	ttl     time.Duration
}

func New(baseURL string, get fetch.Getter, timeout, ttl time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Client{baseURL: baseURL, get: get, timeout: timeout, ttl: ttl}
}

func (c *Client) URL(q model.POIQuery) string {
	var lat, lon float64
	if q.Lat != nil {
		lat = *q.Lat
	}
	if q.Lon != nil {
		lon = *q.Lon
	}
	v := url.Values{}
	v.Set("data", BuildQuery(q.Kind, lat, lon, q.RadiusM))
	return c.baseURL + "?" + v.Encode()
}

type point struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *point            `json:"center"`
	Tags   map[string]string `json:"tags"`
}

// Search returns the located elements matching q in response order. An
// element with neither its own point nor a centroid is dropped. The error
// wraps fetch.ErrUnavailable.
func (c *Client) Search(ctx context.Context, q model.POIQuery) ([]model.POI, error) {
	var body struct {
		Elements []json.RawMessage `json:"elements"`
	}
	err := c.get.GetJSON(ctx, c.URL(q), c.ttl, &body,
		fetch.WithTimeout(c.timeout), fetch.WithUpstream("overpass"))
	if err != nil {
		return nil, err
	}
	out := make([]model.POI, 0, len(body.Elements))
	for _, raw := range body.Elements {
		var el element
		if err := json.Unmarshal(raw, &el); err != nil {
			continue
		}
		if p, ok := toPOI(el); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func toPOI(el element) (model.POI, bool) {
	lat, lon := el.Lat, el.Lon
	if (lat == nil || lon == nil) && el.Center != nil {
		lat, lon = el.Center.Lat, el.Center.Lon
	}
	if lat == nil || lon == nil {
		return model.POI{}, false
	}
	tags := el.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return model.POI{
		ID:   el.ID,
		Kind: el.Type,
		Lat:  *lat,
		Lon:  *lon,
		Name: firstNonEmpty(tags["name"], tags["official_name"], tags["ref"]),
		Tags: tags,
	}, true
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
