package rank

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
)

func located(id string, lat, lon float64) model.Event {
	return model.Event{ID: id, Lat: model.Float(lat), Lon: model.Float(lon)}
}

func TestHaversine_KnownDistances(t *testing.T) {
	assert.InDelta(t, 111.19, Haversine(0, 0, 0, 1), 0.01)
	assert.InDelta(t, 0, Haversine(28.6, 77.2, 28.6, 77.2), 1e-12)
	assert.InDelta(t, 3.13, Haversine(28.61, 77.23, 28.60, 77.20), 0.01)
	assert.InDelta(t, 20015.09, Haversine(0, 0, 0, 180), 0.1)
}

func TestEvents_RadiusFilter(t *testing.T) {
	ev := []model.Event{located("a", 0, 1)}

	assert.Empty(t, Events(ev, 0, 0, 50, 10))

	got := Events(ev, 0, 0, 200, 10)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].DistanceKm)
	assert.Equal(t, 111.19, *got[0].DistanceKm)
}

func TestEvents_OrderAndFiller(t *testing.T) {
	ev := []model.Event{
		{ID: "nocoord-1"},
		located("far", 0, 0.5),
		located("near", 0, 0.1),
		{ID: "nocoord-2"},
		located("tie", 0, 0.1),
		{ID: "partial", Lat: model.Float(1)},
	}
	got := Events(ev, 0, 0, 100, 10)
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"near", "tie", "far", "nocoord-1", "nocoord-2", "partial"}, ids)
	assert.Nil(t, got[3].DistanceKm)
}

func TestEvents_MaxResults(t *testing.T) {
	ev := []model.Event{located("a", 0, 0.1), located("b", 0, 0.2), {ID: "c"}, {ID: "d"}}

	assert.Len(t, Events(ev, 0, 0, 100, 1), 1)
	assert.Len(t, Events(ev, 0, 0, 100, 3), 3)
	assert.Len(t, Events(ev, 0, 0, 100, 0), 0)
	assert.Len(t, Events(nil, 0, 0, 100, 5), 0)
}

func TestEvents_Properties(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := range 50 {
		var ev []model.Event
		for i := range 40 {
			if r.IntN(4) == 0 {
				ev = append(ev, model.Event{ID: fmt.Sprintf("n%d", i)})
				continue
			}
			ev = append(ev, located(fmt.Sprintf("e%d", i), r.Float64()*2-1, r.Float64()*2-1))
		}
		radius := r.Float64() * 150
		limit := 1 + r.IntN(30)

		got := Events(ev, 0, 0, radius, limit)
		require.LessOrEqual(t, len(got), limit, "round %d", round)

		last := -1.0
		seenFiller := false
		for _, e := range got {
			if e.DistanceKm == nil {
				seenFiller = true
				continue
			}
			require.False(t, seenFiller, "located event after filler")
			require.LessOrEqual(t, *e.DistanceKm, radius)
			require.GreaterOrEqual(t, *e.DistanceKm, last)
			last = *e.DistanceKm
		}
	}
}

func TestPOIs_SortAndLimit(t *testing.T) {
	pois := []model.POI{
		{ID: 1, Lat: 0, Lon: 0.3},
		{ID: 2, Lat: 0, Lon: 0.1},
		{ID: 3, Lat: 0, Lon: 0.2},
	}
	got := POIs(pois, 0, 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	assert.Equal(t, 11.119, *got[0].DistanceKm)
	assert.Nil(t, pois[0].DistanceKm, "input is not mutated")
}
