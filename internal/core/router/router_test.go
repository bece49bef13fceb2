package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/locate"
)

type fakeLookups struct {
	lastD model.DisasterQuery
	lastP model.POIQuery
}

func (f *fakeLookups) NearbyDisasters(_ context.Context, q model.DisasterQuery) []model.Event {
	f.lastD = q
	if !q.Valid() {
		return []model.Event{}
	}
	return []model.Event{{ID: "e1", Source: model.SourceSeismic, Title: "M 4.2 - x", DistanceKm: model.Float(3.13)}}
}

func (f *fakeLookups) SearchPOIs(_ context.Context, q model.POIQuery) []model.POI {
	f.lastP = q
	return []model.POI{}
}

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, m string) string { return "echo:" + m }

type tagDigester struct{}

func (tagDigester) Digest(_ context.Context, tag string) []string { return []string{"tag:" + tag} }

type fixedLocator struct{ loc *locate.Location }

func (f fixedLocator) Detect(context.Context, string) *locate.Location { return f.loc }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestParseDisasterQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/disasters?lat=28.61&lon=77.23&radius_km=25&days=30&country=%20India%20&max_results=10", nil)
	q, err := ParseDisasterQuery(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if q.Lat == nil || *q.Lat != 28.61 || q.Lon == nil || *q.Lon != 77.23 {
		t.Fatalf("bad origin: %+v", q)
	}
	if q.RadiusKm != 25 || q.LookbackDays != 30 || q.Country != "India" || q.MaxResults != 10 {
		t.Fatalf("bad options: %+v", q)
	}
}

func TestParseDisasterQuery_Defaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/disasters?lat=1&lon=2", nil)
	q, err := ParseDisasterQuery(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if q.RadiusKm != model.DefaultRadiusKm || q.LookbackDays != model.DefaultLookbackDays || q.MaxResults != model.DefaultMaxResults {
		t.Fatalf("defaults not applied: %+v", q)
	}
}

func TestParseDisasterQuery_NonNumericOriginIsMissing(t *testing.T) {
	for _, raw := range []string{"lat=abc&lon=77", "lon=77", "lat=NaN&lon=1", "lat=1&lon=Inf"} {
		r := httptest.NewRequest(http.MethodGet, "/api/disasters?"+raw, nil)
		q, err := ParseDisasterQuery(r)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", raw, err)
		}
		if q.Valid() {
			t.Fatalf("%s: expected invalid origin", raw)
		}
	}
}

func TestParseDisasterQuery_BadOptionals(t *testing.T) {
	for _, raw := range []string{"radius_km=far", "days=-1", "max_results=ten", "radius_km=-5"} {
		r := httptest.NewRequest(http.MethodGet, "/api/disasters?lat=1&lon=1&"+raw, nil)
		if _, err := ParseDisasterQuery(r); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
}

func TestParsePOIQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/pois?lat=1.5&lon=2.5&radius_m=5000&kind=Hospital&limit=3", nil)
	q, err := ParsePOIQuery(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if *q.Lat != 1.5 || *q.Lon != 2.5 || q.RadiusM != 5000 || q.Kind != "hospital" || q.Limit != 3 {
		t.Fatalf("got %+v", q)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/pois?lat=1&lon=2", nil)
	q, _ = ParsePOIQuery(r)
	if q.RadiusM != model.DefaultPOIRadiusM || q.Kind != model.DefaultPOIKind || q.Limit != model.DefaultPOILimit {
		t.Fatalf("defaults not applied: %+v", q)
	}
}

func TestHandleDisasters(t *testing.T) {
	svc := &fakeLookups{}
	h := HandleDisasters(discard(), svc)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/disasters?lat=28.61&lon=77.23", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("status=%d ct=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	var got []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0]["source"] != "seismic" || got[0]["distance_km"] != 3.13 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/disasters?lat=north&lon=77", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("non-numeric lat: status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/disasters?lat=1&lon=1&days=soon", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad days: status=%d", rr.Code)
	}
}

func TestHandlePOIs_EmptyIsArray(t *testing.T) {
	rr := httptest.NewRecorder()
	HandlePOIs(discard(), &fakeLookups{})(rr, httptest.NewRequest(http.MethodGet, "/api/pois?lat=1&lon=1", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestHandleChat(t *testing.T) {
	h := HandleChat(echoResponder{})

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"flood"}`)))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"response":"echo:flood"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status=%d", rr.Code)
	}
}

func TestHandleLatestUpdates_DefaultTag(t *testing.T) {
	h := HandleLatestUpdates(tagDigester{})

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/latest_updates", nil))
	if !strings.Contains(rr.Body.String(), `"updates":["tag:general"]`) {
		t.Fatalf("body=%s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/latest_updates", strings.NewReader(`{"tag":"tsunami"}`)))
	if !strings.Contains(rr.Body.String(), `"updates":["tag:tsunami"]`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestHandleLocation(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleLocation(fixedLocator{loc: &locate.Location{Lat: 1, Lon: 2, DisplayName: "X"}})(rr, httptest.NewRequest(http.MethodGet, "/api/location", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"display_name":"X"`) {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	HandleLocation(fixedLocator{})(rr, httptest.NewRequest(http.MethodGet, "/api/location", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rr.Code)
	}
}
