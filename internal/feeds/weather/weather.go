// Package weather adapts the NWS active-alerts feed to feeds.
package weather

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	Name      = "weather"
	maxAlerts = 10
	ttl       = 300 * time.Second
)

type Adapter struct {
	baseURL string
	get     fetch.Getter
}

var _ feeds.Adapter = (*Adapter)(nil)

func New(baseURL string, get fetch.Getter) *Adapter {
	return &Adapter{baseURL: baseURL, get: get}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) URL(q feeds.Query) string {
	return a.baseURL + "?point=" +
		strconv.FormatFloat(q.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(q.Lon, 'f', -1, 64)
}

type alert struct {
	Properties struct {
		ID       string `json:"id"`
		Event    string `json:"event"`
		Severity string `json:"severity"`
		Headline string `json:"headline"`
		Onset    string `json:"onset"`
		Expires  string `json:"expires"`
		AreaDesc string `json:"areaDesc"`
	} `json:"properties"`
}

func (a *Adapter) Fetch(ctx context.Context, q feeds.Query) feeds.Result {
	var fc struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := a.get.GetJSON(ctx, a.URL(q), ttl, &fc, fetch.WithUpstream("nws")); err != nil {
		return feeds.Unavailable(Name, err)
	}
	feats := fc.Features
	if len(feats) > maxAlerts {
		feats = feats[:maxAlerts]
	}
	out := make([]feeds.Record, 0, len(feats))
	for _, raw := range feats {
		var al alert
		if err := json.Unmarshal(raw, &al); err != nil {
			continue
		}
		p := al.Properties
		title := p.Headline
		if title == "" {
			title = p.Event
		}
		out = append(out, feeds.Record{
			Source:   string(model.SourceWeatherAlert),
			Type:     "weather",
			Title:    title,
			Severity: p.Severity,
			Onset:    p.Onset,
			Expires:  p.Expires,
			Areas:    p.AreaDesc,
			Raw:      raw,
		})
	}
	return feeds.Ok(Name, out)
}
