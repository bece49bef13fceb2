// Package metrics serves hazardd's Prometheus collectors from a dedicated
// registry on its own listener.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Enabled bool
	Addr    string
	Path    string
	Build   BuildInfo
	// Collectors are registered alongside the runtime collectors, typically
	// observability.Collectors().
	Collectors []prometheus.Collector
}

type Provider struct {
	cfg       Config
	reg       *prometheus.Registry
	buildInfo *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hazardd_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	p := &Provider{cfg: cfg, reg: reg, buildInfo: build}
	p.Register(cfg.Collectors...)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Serve exposes Handler on cfg.Addr until ctx is done. It returns once the
// listener goroutine is started.
func (p *Provider) Serve(ctx context.Context, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle(p.cfg.Path, p.Handler())

	srv := &http.Server{
		Addr:              p.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("metrics listen", "addr", p.cfg.Addr, "path", p.cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server exited", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown error", "err", err)
		}
	}()
}
