package overpass

import (
	"strconv"
	"strings"
)

// selector is one Overpass QL statement prefix, completed with an around
// filter at build time.
type selector string

// kinds is the closed set of recognized POI kinds. Anything else is matched
// literally as an amenity tag value.
var kinds = map[string][]selector{
	"hospital":     {`node["amenity"="hospital"]`},
	"hospitals":    {`node["amenity"="hospital"]`},
	"pharmacy":     {`node["amenity"="pharmacy"]`},
	"pharmacies":   {`node["amenity"="pharmacy"]`},
	"school":       schoolSelectors,
	"schools":      schoolSelectors,
	"fuel":         {`node["amenity"="fuel"]`},
	"petrol":       {`node["amenity"="fuel"]`},
	"gas":          {`node["amenity"="fuel"]`},
	"fuelstation":  {`node["amenity"="fuel"]`},
	"police":       {`node["amenity"="police"]`},
	"fire_station": {`node["amenity"="fire_station"]`},
	"firestation":  {`node["amenity"="fire_station"]`},
	"fire-station": {`node["amenity"="fire_station"]`},
	"road":         {`way["highway"]`},
	"roads":        {`way["highway"]`},
	"highway":      {`way["highway"]`},
	"electricity":  {`node["power"]`},
	"power":        {`node["power"]`},
	"amenity":      {`node`},
	"all":          {`node`},
	"node":         {`node`},
}

var schoolSelectors = []selector{
	`node["amenity"="school"]`,
	`node["amenity"="college"]`,
	`node["amenity"="university"]`,
}

// Known reports whether kind maps to a dedicated query template.
func Known(kind string) bool {
	_, ok := kinds[normalizeKind(kind)]
	return ok
}

// BuildQuery renders the Overpass QL for kind around (lat, lon). Extended
// geometries are returned with their centroid.
func BuildQuery(kind string, lat, lon float64, radiusM int) string {
	k := normalizeKind(kind)
	sels, ok := kinds[k]
	if !ok {
		sels = []selector{selector(`node["amenity"="` + escapeValue(k) + `"]`)}
	}
	around := "(around:" + strconv.Itoa(radiusM) + "," +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(lon, 'f', -1, 64) + ");"

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];(")
	for _, s := range sels {
		b.WriteString(string(s))
		b.WriteString(around)
	}
	b.WriteString(");out center;")
	return b.String()
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}

func escapeValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
