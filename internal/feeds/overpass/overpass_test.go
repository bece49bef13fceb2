package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

func TestBuildQuery_Kinds(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"Hospitals", `[out:json][timeout:25];(node["amenity"="hospital"](around:5000,28.6,77.2););out center;`},
		{"schools", `[out:json][timeout:25];(node["amenity"="school"](around:5000,28.6,77.2);node["amenity"="college"](around:5000,28.6,77.2);node["amenity"="university"](around:5000,28.6,77.2););out center;`},
		{"petrol", `[out:json][timeout:25];(node["amenity"="fuel"](around:5000,28.6,77.2););out center;`},
		{"fire-station", `[out:json][timeout:25];(node["amenity"="fire_station"](around:5000,28.6,77.2););out center;`},
		{"highway", `[out:json][timeout:25];(way["highway"](around:5000,28.6,77.2););out center;`},
		{"power", `[out:json][timeout:25];(node["power"](around:5000,28.6,77.2););out center;`},
		{"amenity", `[out:json][timeout:25];(node(around:5000,28.6,77.2););out center;`},
		{"shelter", `[out:json][timeout:25];(node["amenity"="shelter"](around:5000,28.6,77.2););out center;`},
		{`x"];node(`, `[out:json][timeout:25];(node["amenity"="x\"];node("](around:5000,28.6,77.2););out center;`},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.kind, 28.6, 77.2, 5000))
		})
	}
	assert.True(t, Known("Police"))
	assert.False(t, Known("shelter"))
}

func TestSearch_MapsElements(t *testing.T) {
	var gotData string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotData = r.URL.Query().Get("data")
		_, _ = w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":28.60,"lon":77.21,"tags":{"amenity":"hospital","name":"AIIMS"}},
			{"type":"way","id":2,"center":{"lat":28.62,"lon":77.22},"tags":{"highway":"primary","ref":"NH44"}},
			{"type":"way","id":3,"tags":{"highway":"service"}},
			{"type":"node","id":4,"lat":28.63,"lon":77.23},
			{"type":"relation","id":"bad"}
		]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, fetch.New(fetch.Options{}), 0, 0)
	q := model.POIQuery{Lat: model.Float(28.61), Lon: model.Float(77.23), RadiusM: 2000, Kind: "hospital"}.WithDefaults()
	pois, err := c.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, pois, 3, "element without point or centroid is dropped")

	assert.Contains(t, gotData, `node["amenity"="hospital"](around:2000,28.61,77.23)`)

	assert.Equal(t, int64(1), pois[0].ID)
	assert.Equal(t, "node", pois[0].Kind)
	assert.Equal(t, "AIIMS", pois[0].Name)

	assert.Equal(t, "way", pois[1].Kind)
	assert.InDelta(t, 28.62, pois[1].Lat, 1e-9)
	assert.Equal(t, "NH44", pois[1].Name)

	assert.Equal(t, "", pois[2].Name)
	assert.NotNil(t, pois[2].Tags)
}

func TestSearch_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c := New(srv.URL, fetch.New(fetch.Options{}), 0, 0)
	_, err := c.Search(context.Background(), model.POIQuery{Lat: model.Float(1), Lon: model.Float(2), RadiusM: 10, Kind: "amenity"})
	assert.ErrorIs(t, err, fetch.ErrUnavailable)
}
