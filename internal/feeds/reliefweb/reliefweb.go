// Package reliefweb adapts the ReliefWeb disasters and reports API to feeds.
// It needs a country; without one it returns an empty result and makes no
// requests.
package reliefweb

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/model"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds/country"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	Name         = "reliefweb"
	defaultLimit = 25
	ttl          = time.Hour
	// reports without a country match are still accepted while fewer than
	// this many have been collected
	minReports = 3
)

type Adapter struct {
	baseURL string
	appName string
	get     fetch.Getter
	limit   int
}

var _ feeds.Adapter = (*Adapter)(nil)

func New(baseURL, appName string, get fetch.Getter) *Adapter {
	if appName == "" {
		appName = "apidoc"
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		appName: appName,
		get:     get,
		limit:   defaultLimit,
	}
}

func (a *Adapter) Name() string { return Name }

type item struct {
	Href   string `json:"href"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Date   string `json:"date"`
	Fields struct {
		Name        string            `json:"name"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Summary     string            `json:"summary"`
		Date        flexDate          `json:"date"`
		Country     []json.RawMessage `json:"country"`
	} `json:"fields"`
}

type page struct {
	Data []json.RawMessage `json:"data"`
}

// flexDate accepts either a plain timestamp string or the API's date object.
type flexDate string

func (d *flexDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = flexDate(s)
		return nil
	}
	var obj struct {
		Event    string `json:"event"`
		Created  string `json:"created"`
		Original string `json:"original"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		*d = ""
		return nil
	}
	for _, v := range []string{obj.Event, obj.Original, obj.Created} {
		if v != "" {
			*d = flexDate(v)
			return nil
		}
	}
	*d = ""
	return nil
}

// Strategies lists the disaster queries tried in order for countryName.
func (a *Adapter) Strategies(countryName string) []string {
	qs := []string{"filter[field]=country&filter[value]=" + quote(countryName)}
	if c, ok := country.Resolve(countryName); ok && c.Alpha3 != "" {
		qs = append(qs, "filter[field]=country_iso3&filter[value]="+quote(c.Alpha3))
	}
	qs = append(qs, "query="+quote(countryName))
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = a.baseURL + "/disasters?appname=" + quote(a.appName) + "&" + q + "&limit=" + strconv.Itoa(a.limit)
	}
	return out
}

func (a *Adapter) reportsURL(countryName string) string {
	return a.baseURL + "/reports?appname=" + quote(a.appName) + "&query=" + quote(countryName) + "&limit=" + strconv.Itoa(a.limit)
}

func (a *Adapter) Fetch(ctx context.Context, q feeds.Query) feeds.Result {
	name := strings.TrimSpace(q.Country)
	if name == "" {
		return feeds.Ok(Name, nil)
	}

	strategies := a.Strategies(name)
	var errs []error
	for _, u := range strategies {
		items, err := a.page(ctx, u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out := make([]feeds.Record, 0, len(items))
		for _, it := range items {
			out = append(out, disasterRecord(it.item, it.raw))
		}
		if len(out) > 0 {
			return feeds.Ok(Name, out)
		}
	}

	items, err := a.page(ctx, a.reportsURL(name))
	if err != nil {
		errs = append(errs, err)
		if len(errs) > len(strategies) {
			// every request failed
			return feeds.Unavailable(Name, errors.Join(errs...))
		}
		return feeds.Ok(Name, nil)
	}
	needle := strings.ToLower(name)
	var out []feeds.Record
	for _, it := range items {
		if strings.Contains(strings.ToLower(reportText(it.item)), needle) || len(out) < minReports {
			out = append(out, reportRecord(it.item, it.raw))
		}
	}
	return feeds.Ok(Name, out)
}

type parsed struct {
	item item
	raw  json.RawMessage
}

func (a *Adapter) page(ctx context.Context, u string) ([]parsed, error) {
	var p page
	if err := a.get.GetJSON(ctx, u, ttl, &p, fetch.WithUpstream("reliefweb")); err != nil {
		return nil, err
	}
	data := p.Data
	if len(data) > a.limit {
		data = data[:a.limit]
	}
	out := make([]parsed, 0, len(data))
	for _, raw := range data {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			continue
		}
		out = append(out, parsed{item: it, raw: raw})
	}
	return out, nil
}

func disasterRecord(it item, raw json.RawMessage) feeds.Record {
	return feeds.Record{
		Source:      string(model.SourceDeclaredDisaster),
		Type:        "declared_disaster",
		Title:       firstNonEmpty(it.Fields.Name, it.Title),
		Description: firstNonEmpty(it.Fields.Description, it.Fields.Summary),
		Time:        string(it.Fields.Date),
		URL:         firstNonEmpty(it.Href, it.URL),
		Raw:         raw,
	}
}

func reportRecord(it item, raw json.RawMessage) feeds.Record {
	return feeds.Record{
		Source:      string(model.SourceReport),
		Type:        "report",
		Title:       firstNonEmpty(it.Title, it.Fields.Title, it.Fields.Name),
		Description: firstNonEmpty(it.Fields.Summary, it.Fields.Description),
		Time:        firstNonEmpty(string(it.Fields.Date), it.Date),
		URL:         firstNonEmpty(it.Href, it.URL),
		Raw:         raw,
	}
}

// reportText is the searchable text of a report: its country list, name and
// summary.
func reportText(it item) string {
	parts := make([]string, 0, len(it.Fields.Country)+2)
	for _, c := range it.Fields.Country {
		var s string
		if json.Unmarshal(c, &s) == nil {
			parts = append(parts, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
			ISO3 string `json:"iso3"`
		}
		if json.Unmarshal(c, &obj) == nil {
			parts = append(parts, obj.Name, obj.ISO3)
		}
	}
	parts = append(parts, it.Fields.Name, it.Fields.Summary)
	return strings.Join(parts, " ")
}

func quote(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
