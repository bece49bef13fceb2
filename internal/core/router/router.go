// Package router parses HTTP requests into core queries and writes the JSON
// answers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/locate"
)

type Lookups interface {
	NearbyDisasters(ctx context.Context, q model.DisasterQuery) []model.Event
	SearchPOIs(ctx context.Context, q model.POIQuery) []model.POI
}

type Responder interface {
	Respond(ctx context.Context, message string) string
}

type Digester interface {
	Digest(ctx context.Context, tag string) []string
}

type Locator interface {
	Detect(ctx context.Context, ip string) *locate.Location
}

const maxBodyBytes = 64 << 10

func HandleDisasters(logger *slog.Logger, svc Lookups) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseDisasterQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !q.Valid() {
			logger.DebugContext(r.Context(), "disasters query without usable origin")
		}
		writeJSON(w, http.StatusOK, svc.NearbyDisasters(r.Context(), q))
	}
}

func HandlePOIs(logger *slog.Logger, svc Lookups) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParsePOIQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !q.Valid() {
			logger.DebugContext(r.Context(), "poi query without usable origin")
		}
		writeJSON(w, http.StatusOK, svc.SearchPOIs(r.Context(), q))
	}
}

func HandleChat(resp Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"response": resp.Respond(r.Context(), body.Message)})
	}
}

func HandleLatestUpdates(d Digester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tag string `json:"tag"`
		}
		if err := decodeBody(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tag := strings.TrimSpace(body.Tag)
		if tag == "" {
			tag = "general"
		}
		writeJSON(w, http.StatusOK, map[string][]string{"updates": d.Digest(r.Context(), tag)})
	}
}

func HandleLocation(l Locator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := l.Detect(r.Context(), locate.ClientIP(r))
		if loc == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "location unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, loc)
	}
}

// ParseDisasterQuery reads lat, lon, radius_km, days, country and
// max_results. Unusable lat/lon are left nil so the core answers with an
// empty list; malformed optional parameters are errors.
func ParseDisasterQuery(r *http.Request) (model.DisasterQuery, error) {
	v := r.URL.Query()
	q := model.DisasterQuery{
		Lat:     coord(v.Get("lat")),
		Lon:     coord(v.Get("lon")),
		Country: strings.TrimSpace(v.Get("country")),
	}
	var err error
	if q.RadiusKm, err = optFloat(v.Get("radius_km"), "radius_km"); err != nil {
		return model.DisasterQuery{}, err
	}
	if q.LookbackDays, err = optInt(v.Get("days"), "days"); err != nil {
		return model.DisasterQuery{}, err
	}
	if q.MaxResults, err = optInt(v.Get("max_results"), "max_results"); err != nil {
		return model.DisasterQuery{}, err
	}
	return q.WithDefaults(), nil
}

// ParsePOIQuery reads lat, lon, radius_m, kind and limit.
func ParsePOIQuery(r *http.Request) (model.POIQuery, error) {
	v := r.URL.Query()
	q := model.POIQuery{
		Lat:  coord(v.Get("lat")),
		Lon:  coord(v.Get("lon")),
		Kind: strings.ToLower(strings.TrimSpace(v.Get("kind"))),
	}
	var err error
	if q.RadiusM, err = optInt(v.Get("radius_m"), "radius_m"); err != nil {
		return model.POIQuery{}, err
	}
	if q.Limit, err = optInt(v.Get("limit"), "limit"); err != nil {
		return model.POIQuery{}, err
	}
	return q.WithDefaults(), nil
}

func coord(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func optFloat(s, name string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return f, nil
}

func optInt(s, name string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
