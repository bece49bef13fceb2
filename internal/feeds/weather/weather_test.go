package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

func TestFetch_MapsAlerts(t *testing.T) {
	var gotPoint string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPoint = r.URL.Query().Get("point")
		_, _ = w.Write([]byte(`{"features":[
			{"properties":{"event":"Flood Warning","severity":"Severe","headline":"Flood Warning issued for Travis County","onset":"2024-04-26T10:00:00-05:00","expires":"2024-04-27T10:00:00-05:00","areaDesc":"Travis, TX"}},
			{"properties":{"event":"Heat Advisory","severity":"Moderate","headline":"","onset":""}},
			42
		]}`))
	}))
	defer srv.Close()

	a := New(srv.URL, fetch.New(fetch.Options{}))
	res := a.Fetch(context.Background(), feeds.Query{Lat: 30.27, Lon: -97.74})
	require.True(t, res.Available())
	require.Len(t, res.Records, 2)

	assert.Equal(t, "30.27,-97.74", gotPoint)

	first := res.Records[0]
	assert.Equal(t, "weather-alert", first.Source)
	assert.Equal(t, "Flood Warning issued for Travis County", first.Title)
	assert.Equal(t, "2024-04-26T10:00:00-05:00", first.Onset)
	assert.Equal(t, "Severe", first.Severity)
	assert.Equal(t, "Travis, TX", first.Areas)
	assert.Nil(t, first.Lat)

	assert.Equal(t, "Heat Advisory", res.Records[1].Title, "event name is the title fallback")
}

func TestFetch_CapsAtTen(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"features":[`)
	for i := range 15 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"properties":{"event":"E%d"}}`, i)
	}
	b.WriteString(`]}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	res := New(srv.URL, fetch.New(fetch.Options{})).Fetch(context.Background(), feeds.Query{Lat: 1, Lon: 1})
	require.True(t, res.Available())
	assert.Len(t, res.Records, 10)
}

func TestFetch_OutsideCoverageIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Invalid Parameter"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	res := New(srv.URL, fetch.New(fetch.Options{})).Fetch(context.Background(), feeds.Query{Lat: 28.6, Lon: 77.2})
	assert.False(t, res.Available())
}
