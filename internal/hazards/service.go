// Package hazards orchestrates the two public lookups: nearby disasters and
// points of interest. Neither lookup ever fails; upstream trouble degrades
// the answer down to an empty list.
package hazards

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/aggregate"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/ttlcache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/geocode"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hitevents"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness"
	mylog "github.com/mohammed-shakir/hazard-aggregator/internal/logger"
	"github.com/mohammed-shakir/hazard-aggregator/internal/mapper"
	"github.com/mohammed-shakir/hazard-aggregator/internal/rank"
	"github.com/mohammed-shakir/hazard-aggregator/pkg/adaptive"
)

const (
	DefaultDisastersTTL = 5 * time.Minute
	DefaultPOIsTTL      = 2 * time.Minute
)

var errNoSources = errors.New("hazards: every source unavailable")

type POISearcher interface {
	Search(ctx context.Context, q model.POIQuery) ([]model.POI, error)
}

type Publisher interface {
	Publish(ev hitevents.Event)
}

type Options struct {
	// Adapters run in this order; it decides which duplicate survives.
	Adapters      []feeds.Adapter
	POIs          POISearcher
	Geocoder geocode.Geocoder
	// Lookups per request. Zero means geocode.DefaultBudget, negative disables backfill.
	GeocodeBudget int

	Cache        *ttlcache.Cache
	DisastersTTL time.Duration
	POIsTTL      time.Duration

	// Area tracking; all optional.
	Hotness   hotness.Interface
	Mapper    mapper.Interface
	Decider   adaptive.Decider
	H3Res     int
	Publisher Publisher

	Clock  clockwork.Clock
	Logger *slog.Logger
}

type Service struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = ttlcache.New(ttlcache.Options{Layer: "memo", Clock: opts.Clock})
	}
	if opts.DisastersTTL <= 0 {
		opts.DisastersTTL = DefaultDisastersTTL
	}
	if opts.POIsTTL <= 0 {
		opts.POIsTTL = DefaultPOIsTTL
	}
	switch {
	case opts.GeocodeBudget == 0:
		opts.GeocodeBudget = geocode.DefaultBudget
	case opts.GeocodeBudget < 0:
		opts.GeocodeBudget = 0
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{opts: opts, log: opts.Logger}
}

// NearbyDisasters returns events around the query origin, nearest located
// events first and coordinate-less events as filler. Invalid coordinates
// give an empty list without touching the network.
func (s *Service) NearbyDisasters(ctx context.Context, q model.DisasterQuery) []model.Event {
	q = q.WithDefaults()
	if !q.Valid() {
		return []model.Event{}
	}
	lat, lon := *q.Lat, *q.Lon
	ctx = mylog.WithComponent(ctx, "hazards")

	area := s.track(ctx, lat, lon, s.opts.DisastersTTL)
	key := keys.Memo("get_nearby_disasters", lat, lon, q.RadiusKm, q.LookbackDays, q.Country, q.MaxResults)

	events, err := ttlcache.Remember(ctx, s.opts.Cache, key, area.ttl, func(ctx context.Context) ([]model.Event, error) {
		return s.disasters(ctx, q)
	})
	if err != nil || events == nil {
		events = []model.Event{}
	}
	events = slices.Clone(events)

	s.publish(hitevents.Event{
		Kind:     hitevents.KindDisasters,
		Lat:      lat,
		Lon:      lon,
		RadiusKm: q.RadiusKm,
		Country:  q.Country,
		Area:     area.cell,
		Tier:     string(area.tier),
		Results:  len(events),
	})
	return events
}

func (s *Service) disasters(ctx context.Context, q model.DisasterQuery) ([]model.Event, error) {
	start := s.opts.Clock.Now()
	log := s.log
	lat, lon := *q.Lat, *q.Lon

	results := feeds.FanOut(ctx, log, s.opts.Adapters, feeds.Query{
		Lat:          lat,
		Lon:          lon,
		RadiusKm:     q.RadiusKm,
		LookbackDays: q.LookbackDays,
		Country:      q.Country,
	})
	available := 0
	for _, r := range results {
		if r.Available() {
			available++
		}
	}

	events := aggregate.Merge(feeds.Records(results))
	aggregate.SortByRecency(events)
	geocoded := geocode.Backfill(ctx, log, s.opts.Geocoder, events, q.Country, s.opts.GeocodeBudget)
	ranked := rank.Events(events, lat, lon, q.RadiusKm, q.MaxResults)

	log.InfoContext(ctx, "disasters aggregated",
		"sources", len(results),
		"available", available,
		"merged", len(events),
		"geocoded", geocoded,
		"returned", len(ranked),
		"duration", s.opts.Clock.Since(start))

	// a canceled caller or a full outage must not pin an empty answer in the memo
	if err := ctx.Err(); err != nil {
		return ranked, err
	}
	if available == 0 && len(results) > 0 {
		return ranked, errNoSources
	}
	return ranked, nil
}

// SearchPOIs returns points of interest of the requested kind around the
// origin, nearest first, at most q.Limit of them.
func (s *Service) SearchPOIs(ctx context.Context, q model.POIQuery) []model.POI {
	q = q.WithDefaults()
	if !q.Valid() || s.opts.POIs == nil {
		return []model.POI{}
	}
	lat, lon := *q.Lat, *q.Lon
	ctx = mylog.WithComponent(ctx, "hazards")

	area := s.track(ctx, lat, lon, s.opts.POIsTTL)
	key := keys.Memo("search_pois", lat, lon, q.RadiusM, q.Kind, q.Limit)

	pois, err := ttlcache.Remember(ctx, s.opts.Cache, key, area.ttl, func(ctx context.Context) ([]model.POI, error) {
		found, err := s.opts.POIs.Search(ctx, q)
		if err != nil {
			s.log.WarnContext(ctx, "poi search unavailable", "kind", q.Kind, "err", err)
			return nil, err
		}
		return rank.POIs(found, lat, lon, q.Limit), nil
	})
	if err != nil || pois == nil {
		pois = []model.POI{}
	}
	pois = slices.Clone(pois)

	s.publish(hitevents.Event{
		Kind:     hitevents.KindPOIs,
		Lat:      lat,
		Lon:      lon,
		RadiusKm: float64(q.RadiusM) / 1000,
		POIKind:  q.Kind,
		Area:     area.cell,
		Tier:     string(area.tier),
		Results:  len(pois),
	})
	return pois
}

type areaInfo struct {
	cell string
	tier adaptive.Tier
	ttl  time.Duration
}

// track bumps the hotness of the origin's area and its parent, then picks
// the memo TTL. Without tracking configured the base TTL applies.
func (s *Service) track(ctx context.Context, lat, lon float64, base time.Duration) areaInfo {
	info := areaInfo{tier: adaptive.TierCold, ttl: base}
	if s.opts.Hotness == nil || s.opts.Mapper == nil {
		return info
	}
	areas, err := mapper.Areas(s.opts.Mapper, lat, lon, s.opts.H3Res)
	if err != nil {
		return info
	}
	cell := areas[0]
	info.cell = cell
	for _, a := range areas {
		s.opts.Hotness.Inc(a)
	}
	if s.opts.Decider == nil {
		return info
	}
	dec, reason := s.opts.Decider.Decide(adaptive.Query{Cells: []string{cell}, BaseRes: s.opts.H3Res}, s.opts.Hotness)
	info.tier = dec.Tier
	if dec.TTL > base {
		info.ttl = dec.TTL
	}
	s.log.DebugContext(ctx, "memo ttl decided", "tier", dec.Tier, "reason", reason, "ttl", info.ttl)
	return info
}

func (s *Service) publish(ev hitevents.Event) {
	if s.opts.Publisher == nil {
		return
	}
	ev.TS = s.opts.Clock.Now().UTC()
	s.opts.Publisher.Publish(ev)
}
