// Package rank orders events and POIs by great-circle distance from an
// origin.
package rank

import (
	"math"
	"slices"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
)

// EarthRadiusKm is the mean Earth radius used by Haversine.
const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := (lat2 - lat1) * math.Pi / 180
	dlambda := (lon2 - lon1) * math.Pi / 180
	x := math.Pow(math.Sin(dphi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dlambda/2), 2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(x)))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Events keeps located events within radiusKm sorted nearest first, then
// pads with coordinate-less events in their existing order. The result never
// exceeds maxResults. Distances are rounded to 2 decimals before filtering.
func Events(events []model.Event, lat, lon, radiusKm float64, maxResults int) []model.Event {
	if maxResults <= 0 {
		return []model.Event{}
	}
	located := make([]model.Event, 0, len(events))
	var rest []model.Event
	for _, e := range events {
		if !e.HasCoords() {
			rest = append(rest, e)
			continue
		}
		d := round(Haversine(lat, lon, *e.Lat, *e.Lon), 2)
		if d > radiusKm {
			continue
		}
		e.DistanceKm = model.Float(d)
		located = append(located, e)
	}
	slices.SortStableFunc(located, func(a, b model.Event) int {
		return cmpFloat(*a.DistanceKm, *b.DistanceKm)
	})

	if len(located) >= maxResults {
		return located[:maxResults]
	}
	out := located
	for _, e := range rest {
		if len(out) >= maxResults {
			break
		}
		e.DistanceKm = nil
		out = append(out, e)
	}
	return out
}

// POIs sorts pois nearest first, with distances rounded to 3 decimals, and
// truncates to limit.
func POIs(pois []model.POI, lat, lon float64, limit int) []model.POI {
	out := make([]model.POI, 0, len(pois))
	for _, p := range pois {
		p.DistanceKm = model.Float(round(Haversine(lat, lon, p.Lat, p.Lon), 3))
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b model.POI) int {
		return cmpFloat(*a.DistanceKm, *b.DistanceKm)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
