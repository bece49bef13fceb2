// Package updates turns public hazard feeds into a short list of headlines
// for a hazard tag.
package updates

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	perSource = 3
	maxItems  = 5
	// DefaultTTL keeps digests fresh without hammering the feeds.
	DefaultTTL = 10 * time.Minute
	timeout    = 6 * time.Second
)

var Generic = []string{
	"Remember to stay informed through local news and weather services",
	"Keep emergency contacts handy",
	"Have an emergency kit ready with essentials",
}

// Sources maps a hazard tag to the feeds consulted for it; unknown tags use
// "general". {app} is replaced with the ReliefWeb app name.
var Sources = map[string][]string{
	"earthquake": {
		"https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_week.geojson",
		"https://api.reliefweb.int/v1/disasters?appname={app}&filter[field]=type&filter[value]=Earthquake",
	},
	"flood": {
		"https://api.reliefweb.int/v1/disasters?appname={app}&filter[field]=type&filter[value]=Flood",
		"https://api.weather.gov/alerts/active?event=Flood%20Warning",
	},
	"hurricane_cyclone_typhoon": {
		"https://api.weather.gov/alerts/active?event=Hurricane%20Warning",
		"https://rss.weather.gov.hk/rss/SeveralWeather.xml",
	},
	"wildfire": {
		"https://api.reliefweb.int/v1/disasters?appname={app}&filter[field]=type&filter[value]=Wild%20Fire",
		"https://api.weather.gov/alerts/active?event=Red%20Flag%20Warning",
	},
	"tsunami": {
		"https://api.weather.gov/alerts/active?event=Tsunami%20Warning",
		"https://api.reliefweb.int/v1/disasters?appname={app}&filter[field]=type&filter[value]=Tsunami",
	},
	"general": {
		"https://api.reliefweb.int/v1/disasters?appname={app}&limit=5&profile=list",
	},
}

type BytesGetter interface {
	GetBytes(ctx context.Context, rawURL string, ttl time.Duration, opts ...fetch.CallOption) ([]byte, error)
}

type Digester struct {
	get     BytesGetter
	sources map[string][]string
	ttl     time.Duration
	log     *slog.Logger
}

// New builds a Digester. A nil sources map uses Sources.
func New(get BytesGetter, sources map[string][]string, appName string, ttl time.Duration, log *slog.Logger) *Digester {
	if sources == nil {
		sources = Sources
	}
	if appName == "" {
		appName = "apidoc"
	}
	resolved := make(map[string][]string, len(sources))
	for tag, urls := range sources {
		for _, u := range urls {
			resolved[tag] = append(resolved[tag], strings.ReplaceAll(u, "{app}", appName))
		}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Digester{get: get, sources: resolved, ttl: ttl, log: log}
}

// Digest returns up to five distinct headlines for tag, or the generic tips
// when no source produced any.
func (d *Digester) Digest(ctx context.Context, tag string) []string {
	urls, ok := d.sources[tag]
	if !ok {
		urls = d.sources["general"]
	}

	var items []string
	for _, u := range urls {
		b, err := d.get.GetBytes(ctx, u, d.ttl, fetch.WithTimeout(timeout), fetch.WithUpstream("updates"))
		if err != nil {
			continue
		}
		got, err := extract(b)
		if err != nil {
			d.log.DebugContext(ctx, "update source unparseable", "url", u, "err", err)
			continue
		}
		items = append(items, got...)
	}

	out := dedupe(items, maxItems)
	if len(out) == 0 {
		return append([]string(nil), Generic...)
	}
	return out
}

func extract(b []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return extractJSON(trimmed)
	}
	return extractXML(trimmed)
}

type jsonDoc struct {
	Features []struct {
		Properties struct {
			Mag      *float64 `json:"mag"`
			Place    string   `json:"place"`
			Headline string   `json:"headline"`
			Event    string   `json:"event"`
		} `json:"properties"`
	} `json:"features"`
	Data []struct {
		Title  string `json:"title"`
		Fields struct {
			Name   string `json:"name"`
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"fields"`
	} `json:"data"`
	Entry []struct {
		Title string `json:"title"`
	} `json:"entry"`
}

func extractJSON(b []byte) ([]string, error) {
	var doc jsonDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	var out []string
	switch {
	case doc.Features != nil:
		for _, f := range head(doc.Features) {
			out = append(out, featureLine(f.Properties.Mag, f.Properties.Place, f.Properties.Headline, f.Properties.Event))
		}
	case doc.Data != nil:
		for _, it := range head(doc.Data) {
			title := firstNonEmpty(it.Fields.Name, it.Fields.Title, it.Title)
			status := firstNonEmpty(it.Fields.Status, "Active")
			out = append(out, "Update: "+title+" - "+status)
		}
	case doc.Entry != nil:
		for _, e := range head(doc.Entry) {
			out = append(out, "Update: "+firstNonEmpty(e.Title, "Update available"))
		}
	}
	return out, nil
}

func featureLine(mag *float64, place, headline, event string) string {
	switch {
	case mag != nil || place != "":
		m := "unknown"
		if mag != nil {
			m = strconv.FormatFloat(*mag, 'f', -1, 64)
		}
		return fmt.Sprintf("Alert: Magnitude %s earthquake near %s", m, firstNonEmpty(place, "unknown location"))
	case headline != "" || event != "":
		return "Alert: " + firstNonEmpty(headline, event)
	default:
		return "Earthquake alert"
	}
}

type feedDoc struct {
	Items   []feedItem `xml:"channel>item"`
	Entries []feedItem `xml:"entry"`
}

type feedItem struct {
	Title string `xml:"title"`
}

// extractXML reads RSS items or Atom entries.
func extractXML(b []byte) ([]string, error) {
	var doc feedDoc
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	items := doc.Items
	if len(items) == 0 {
		items = doc.Entries
	}
	var out []string
	for _, it := range head(items) {
		if t := strings.TrimSpace(it.Title); t != "" {
			out = append(out, "Update: "+t)
		}
	}
	return out, nil
}

func head[T any](xs []T) []T {
	if len(xs) > perSource {
		return xs[:perSource]
	}
	return xs
}

func dedupe(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, limit)
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
