// Package fetch performs cached JSON GETs against upstream feeds. Every
// failure mode (transport error, timeout, non-200 status, malformed body)
// surfaces as ErrUnavailable and is never cached.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/ttlcache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
)

var ErrUnavailable = errors.New("upstream unavailable")

const maxBody = 16 << 20

// Getter is the capability adapters depend on.
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, ttl time.Duration, dst any, opts ...CallOption) error
}

type Options struct {
	Client  *http.Client
	Cache   *ttlcache.Cache
	Timeout time.Duration
	Logger  *slog.Logger
}

type Fetcher struct {
	client  *http.Client
	cache   *ttlcache.Cache
	timeout time.Duration
	log     *slog.Logger
}

var _ Getter = (*Fetcher)(nil)

func New(opts Options) *Fetcher {
	f := &Fetcher{
		client:  opts.Client,
		cache:   opts.Cache,
		timeout: opts.Timeout,
		log:     opts.Logger,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.cache == nil {
		f.cache = ttlcache.New(ttlcache.Options{Layer: "fetch"})
	}
	if f.timeout <= 0 {
		f.timeout = 8 * time.Second
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

type callOpts struct {
	timeout  time.Duration
	upstream string
}

type CallOption func(*callOpts)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOpts) { o.timeout = d }
}

// WithUpstream sets the upstream label used in metrics and logs.
func WithUpstream(name string) CallOption {
	return func(o *callOpts) { o.upstream = name }
}

// GetBytes returns the body of a successful GET of rawURL, served from cache
// when a live entry exists.
// Any body is accepted, so XML and text feeds travel through here too.
func (f *Fetcher) GetBytes(ctx context.Context, rawURL string, ttl time.Duration, opts ...CallOption) ([]byte, error) {
	return f.get(ctx, rawURL, ttl, false, opts)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, ttl time.Duration, wantJSON bool, opts []CallOption) ([]byte, error) {
	co := callOpts{timeout: f.timeout}
	for _, o := range opts {
		o(&co)
	}
	if co.upstream == "" {
		co.upstream = hostOf(rawURL)
	}
	return f.cache.RememberBytes(ctx, rawURL, ttl, func(ctx context.Context) ([]byte, error) {
		b, err := f.do(ctx, rawURL, co)
		if err == nil && wantJSON && !json.Valid(b) {
			err = fmt.Errorf("%w: %s: malformed json body", ErrUnavailable, rawURL)
			f.log.WarnContext(ctx, "upstream fetch failed", "upstream", co.upstream, "err", err)
		}
		return b, err
	})
}

// GetJSON decodes the cached body of rawURL into dst. Malformed bodies are
// unavailable and never cached.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, ttl time.Duration, dst any, opts ...CallOption) error {
	b, err := f.get(ctx, rawURL, ttl, true, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, rawURL, err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, rawURL string, co callOpts) ([]byte, error) {
	start := time.Now()
	b, err := f.roundTrip(ctx, rawURL, co.timeout)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		f.log.WarnContext(ctx, "upstream fetch failed",
			"upstream", co.upstream,
			"err", err,
			"duration", time.Since(start))
	}
	observability.ObserveUpstreamLatency(co.upstream, outcome, time.Since(start).Seconds())
	return b, err
}

func (f *Fetcher) roundTrip(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json, application/rss+xml;q=0.9, application/atom+xml;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnavailable, rawURL, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrUnavailable, rawURL, err)
	}
	return b, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
