// Package locate estimates a caller's position from their IP address.
package locate

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
)

const (
	DefaultBaseURL = "http://ip-api.com/json"
	cacheTTL       = 10 * time.Minute
)

type Location struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
}

type Detector struct {
	baseURL string
	get     fetch.Getter
	timeout time.Duration
	log     *slog.Logger
}

func New(baseURL string, get fetch.Getter, timeout time.Duration, log *slog.Logger) *Detector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{baseURL: strings.TrimRight(baseURL, "/"), get: get, timeout: timeout, log: log}
}

// URL returns the lookup URL for ip. Loopback, private and unparseable
// addresses let the service detect the caller itself.
func (d *Detector) URL(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
		return d.baseURL
	}
	return d.baseURL + "/" + addr.String()
}

type ipAPIResponse struct {
	Status     string   `json:"status"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	City       string   `json:"city"`
	RegionName string   `json:"regionName"`
	Country    string   `json:"country"`
	Query      string   `json:"query"`
}

// Detect returns the estimated location of ip, or nil when it cannot be
// determined.
func (d *Detector) Detect(ctx context.Context, ip string) *Location {
	var resp ipAPIResponse
	u := d.URL(ip)
	if err := d.get.GetJSON(ctx, u, cacheTTL, &resp, fetch.WithTimeout(d.timeout), fetch.WithUpstream("ipapi")); err != nil {
		return nil
	}
	if resp.Status != "success" || resp.Lat == nil || resp.Lon == nil {
		d.log.DebugContext(ctx, "ip lookup unsuccessful", "status", resp.Status)
		return nil
	}
	var parts []string
	for _, p := range []string{resp.City, resp.RegionName, resp.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, ", ")
	if name == "" {
		name = resp.Query
	}
	return &Location{Lat: *resp.Lat, Lon: *resp.Lon, DisplayName: name}
}

// ClientIP returns the left-most X-Forwarded-For entry, else the host part
// of the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
