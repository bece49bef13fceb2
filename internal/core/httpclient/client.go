// Package httpclient configures the HTTP client used to call upstream services.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the shared client for upstream feeds. Every request
// carries userAgent unless the caller already set one; public geodata
// services reject anonymous clients.
func NewOutbound(userAgent string) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: &uaTransport{next: transport, ua: userAgent},
		Timeout:   30 * time.Second,
	}
}

type uaTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *uaTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.ua == "" || r.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(r)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("User-Agent", t.ua)
	return t.next.RoundTrip(r2)
}
