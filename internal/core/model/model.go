// Package model defines core domain types shared across the service.
package model

import "math"

// Source tags the upstream family an Event came from.
type Source string

const (
	SourceSeismic          Source = "seismic"
	SourceWeatherAlert     Source = "weather-alert"
	SourceDeclaredDisaster Source = "declared-disaster"
	SourceReport           Source = "report"
	SourceUnknown          Source = "unknown"
)

// Event is a normalized hazard occurrence or declared disaster.
type Event struct {
	ID          string   `json:"id"`
	Source      Source   `json:"source"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Time        string   `json:"time,omitempty"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	URL         string   `json:"url,omitempty"`
	Mag         *float64 `json:"mag,omitempty"`
	DistanceKm  *float64 `json:"distance_km,omitempty"`

	// Place is kept for geocoding queries but not serialized.
	Place string `json:"-"`
	Raw   any    `json:"-"`
}

// HasCoords reports whether both coordinates are present and finite.
func (e Event) HasCoords() bool {
	return e.Lat != nil && e.Lon != nil && finite(*e.Lat) && finite(*e.Lon)
}

// POI is a point of interest returned by the geodata query service.
type POI struct {
	ID         int64             `json:"id"`
	Kind       string            `json:"osm_type"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Name       string            `json:"name"`
	Tags       map[string]string `json:"tags"`
	DistanceKm *float64          `json:"distance_km,omitempty"`
}

// DisasterQuery carries the parsed parameters of a nearby-disasters lookup.
// Nil coordinates mean the caller did not supply usable values.
type DisasterQuery struct {
	Lat          *float64
	Lon          *float64
	RadiusKm     float64
	LookbackDays int
	Country      string
	MaxResults   int
}

const (
	DefaultRadiusKm     = 20.0
	DefaultLookbackDays = 180
	DefaultMaxResults   = 50

	DefaultPOIRadiusM = 20000
	DefaultPOIKind    = "amenity"
	DefaultPOILimit   = 50
)

// WithDefaults fills zero-valued optional fields.
func (q DisasterQuery) WithDefaults() DisasterQuery {
	if q.RadiusKm <= 0 || !finite(q.RadiusKm) {
		q.RadiusKm = DefaultRadiusKm
	}
	if q.LookbackDays <= 0 {
		q.LookbackDays = DefaultLookbackDays
	}
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}
	return q
}

// Valid reports whether the origin is usable.
func (q DisasterQuery) Valid() bool {
	return validOrigin(q.Lat, q.Lon)
}

// POIQuery carries the parsed parameters of a POI search.
type POIQuery struct {
	Lat     *float64
	Lon     *float64
	RadiusM int
	Kind    string
	Limit   int
}

func (q POIQuery) WithDefaults() POIQuery {
	if q.RadiusM <= 0 {
		q.RadiusM = DefaultPOIRadiusM
	}
	if q.Kind == "" {
		q.Kind = DefaultPOIKind
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPOILimit
	}
	return q
}

func (q POIQuery) Valid() bool {
	return validOrigin(q.Lat, q.Lon)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

func validOrigin(lat, lon *float64) bool {
	return lat != nil && lon != nil && finite(*lat) && finite(*lon)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
