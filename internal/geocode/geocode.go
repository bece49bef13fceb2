// Package geocode backfills missing event coordinates through a free-text
// geocoder under a per-request lookup budget.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	DefaultBudget  = 8
	descriptionMax = 200
)

var ErrNoMatch = errors.New("geocode: no match")

// Geocoder resolves a free-text query to a single coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat, lon float64, err error)
}

// Nominatim queries an OSM Nominatim search endpoint through the fetch cache.
type Nominatim struct {
	baseURL string
	get     fetch.Getter
	ttl     time.Duration
}

var _ Geocoder = (*Nominatim)(nil)

func NewNominatim(baseURL string, get fetch.Getter, ttl time.Duration) *Nominatim {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Nominatim{baseURL: baseURL, get: get, ttl: ttl}
}

func (n *Nominatim) URL(query string) string {
	return n.baseURL + "?format=json&limit=1&q=" + url.QueryEscape(query)
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (float64, float64, error) {
	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := n.get.GetJSON(ctx, n.URL(query), n.ttl, &hits, fetch.WithUpstream("nominatim")); err != nil {
		return 0, 0, err
	}
	if len(hits) == 0 {
		return 0, 0, ErrNoMatch
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(hits[0].Lat), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: parse lat %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(hits[0].Lon), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: parse lon %q: %w", hits[0].Lon, err)
	}
	return lat, lon, nil
}

// Query builds the lookup text for e: place, title, truncated description
// and the optional country bias, joined by ", ".
func Query(e model.Event, country string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{e.Place, e.Title, truncate(e.Description, descriptionMax), country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Backfill fills coordinates of events lacking them, in order, issuing at
// most budget lookups. Every issued lookup spends budget whether or not it
// finds a match, so one request never makes more than budget geocoder calls
// even when the upstream keeps failing. Failed lookups leave the event
// untouched. It returns the number of events that gained coordinates.
func Backfill(ctx context.Context, log *slog.Logger, g Geocoder, events []model.Event, country string, budget int) int {
	if g == nil || budget <= 0 {
		return 0
	}
	filled := 0
	for i := range events {
		if budget <= 0 {
			break
		}
		e := &events[i]
		if e.HasCoords() {
			continue
		}
		q := Query(*e, country)
		if q == "" {
			continue
		}
		budget--
		lat, lon, err := g.Geocode(ctx, q)
		if err != nil {
			observability.ObserveGeocode("miss")
			if log != nil {
				log.DebugContext(ctx, "geocode skipped", "event", e.ID, "err", err)
			}
			continue
		}
		observability.ObserveGeocode("hit")
		e.Lat = model.Float(lat)
		e.Lon = model.Float(lon)
		filled++
	}
	return filled
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
