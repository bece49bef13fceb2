package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/hazard-aggregator/internal/assistant"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/redisstore"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/ttlcache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/config"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/health"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/httpclient"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/server"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds/overpass"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds/reliefweb"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds/seismic"
	"github.com/mohammed-shakir/hazard-aggregator/internal/feeds/weather"
	"github.com/mohammed-shakir/hazard-aggregator/internal/fetch"
	"github.com/mohammed-shakir/hazard-aggregator/internal/geocode"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hazards"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hitevents"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness/expdecay"
	"github.com/mohammed-shakir/hazard-aggregator/internal/hotness/metricswrap"
	"github.com/mohammed-shakir/hazard-aggregator/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/hazard-aggregator/internal/locate"
	"github.com/mohammed-shakir/hazard-aggregator/internal/logger"
	h3mapper "github.com/mohammed-shakir/hazard-aggregator/internal/mapper/h3"
	"github.com/mohammed-shakir/hazard-aggregator/internal/metrics"
	"github.com/mohammed-shakir/hazard-aggregator/internal/updates"
	"github.com/mohammed-shakir/hazard-aggregator/pkg/adaptive/simple"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func run() int {
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	// a missing .env is fine; real environment variables take precedence
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load failed", "file", *envFile, "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		return 1
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Service:   "hazardd",
		Component: "main",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	slog.SetDefault(appLog)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting hazardd",
		"addr", cfg.Addr,
		"version", Version,
		"redis", cfg.RedisURL != "" || cfg.RedisAddr != "",
		"adaptive", cfg.Adaptive.Enabled,
		"hit_events", cfg.HitEvents.Enabled,
		"invalidation", cfg.Invalidation.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]health.Pinger{}
	var backend cache.Backend
	if store, err := openRedis(ctx, cfg); err != nil {
		appLog.Warn("redis unavailable; using in-memory cache only", "err", err)
	} else if store != nil {
		defer func() { _ = store.Close() }()
		backend = store
		ready["redis"] = store
	}

	// one cache per layer, built once and shared by every component
	newCache := func(layer string) *ttlcache.Cache {
		return ttlcache.New(ttlcache.Options{
			Layer:      layer,
			MaxEntries: cfg.MemoryCacheMaxEntries,
			Backend:    backend,
			Namespace:  cfg.CacheNamespace,
			OpTimeout:  cfg.CacheOpTimeout,
			Logger:     appLog,
		})
	}
	fetchCache, memoCache := newCache("fetch"), newCache("memo")
	fetcher := fetch.New(fetch.Options{
		Client:  httpclient.NewOutbound(cfg.Upstreams.UserAgent),
		Cache:   fetchCache,
		Timeout: cfg.Timeouts.Feed,
		Logger:  appLog,
	})

	opts := hazards.Options{
		Adapters: []feeds.Adapter{
			seismic.New(cfg.Upstreams.USGSURL, fetcher, nil),
			weather.New(cfg.Upstreams.NWSURL, fetcher),
			reliefweb.New(cfg.Upstreams.ReliefWebURL, cfg.Upstreams.ReliefWebApp, fetcher),
		},
		POIs:          overpass.New(cfg.Upstreams.OverpassURL, fetcher, cfg.Timeouts.Overpass, cfg.POIsTTL),
		Geocoder:      geocode.NewNominatim(cfg.Upstreams.NominatimURL, fetcher, cfg.GeocodeTTL),
		GeocodeBudget: cfg.GeocodeBudget,
		Cache:         memoCache,
		DisastersTTL:  cfg.DisastersTTL,
		POIsTTL:       cfg.POIsTTL,
		Logger:        appLog,
	}

	tracker := expdecay.New(cfg.Adaptive.HotHalfLife, nil)
	opts.Hotness = metricswrap.New(tracker, metricswrap.Options{
		Threshold: cfg.Adaptive.HotThreshold,
		LogSample: envFloat("LOG_HOTNESS_SAMPLE", 0.01),
		Logger:    appLog,
	})
	opts.Mapper = h3mapper.New()
	opts.H3Res = cfg.Adaptive.H3Res
	if cfg.Adaptive.Enabled {
		opts.Decider = simple.New(simple.Config{
			Threshold: cfg.Adaptive.HotThreshold,
			BaseRes:   cfg.Adaptive.H3Res,
			TTLWarm:   cfg.Adaptive.TTLWarm,
			TTLHot:    cfg.Adaptive.TTLHot,
		}, opts.Mapper)
	}
	go pruneLoop(ctx, tracker, cfg.Adaptive.HotHalfLife*10)

	if cfg.HitEvents.Enabled {
		pub, err := hitevents.NewPublisher(splitList(cfg.HitEvents.Brokers), cfg.HitEvents.Topic, cfg.HitEvents.QueueSize, appLog)
		if err != nil {
			appLog.Warn("hit events disabled", "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("hit events close", "err", err)
				}
			}()
			opts.Publisher = pub
		}
	}

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg.Invalidation), appLog,
			[]kafkaconsumer.Flusher{memoCache, fetchCache}, tracker, opts.Mapper, opts.H3Res)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Warn("cache invalidation disabled", "err", err)
			}
		}()
	}

	svc := hazards.New(opts)
	digest := updates.New(fetcher, nil, cfg.Upstreams.ReliefWebApp, updates.DefaultTTL, appLog)
	catalog := assistant.Builtin()

	deps := server.Deps{
		Lookups:   svc,
		Responder: assistant.NewResponder(assistant.NewKeywordClassifier(catalog), catalog, digest),
		Digester:  digest,
		Locator:   locate.New(cfg.Upstreams.IPAPIURL, fetcher, cfg.Timeouts.Locate, appLog),
		Ready:     ready,
	}

	if os.Getenv("METRICS_ENABLED") == "true" {
		startMetrics(ctx, appLog)
	}

	if err := server.Run(ctx, cfg, appLog, deps); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

func openRedis(ctx context.Context, cfg config.Config) (*redisstore.Client, error) {
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	ropts := []redisstore.Option{
		redisstore.WithPoolSize(cfg.RedisPoolSize),
		redisstore.WithDialTimeout(cfg.RedisDialTimeout),
		redisstore.WithReadTimeout(cfg.RedisIOTimeout),
		redisstore.WithWriteTimeout(cfg.RedisIOTimeout),
	}
	switch {
	case cfg.RedisURL != "":
		return redisstore.NewFromURL(cctx, cfg.RedisURL, ropts...)
	case cfg.RedisAddr != "":
		return redisstore.New(cctx, cfg.RedisAddr, ropts...)
	default:
		return nil, nil
	}
}

// pruneLoop forgets areas nobody asked about for a while.
func pruneLoop(ctx context.Context, tr *expdecay.Tracker, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tr.Prune(0.01)
		}
	}
}

func startMetrics(ctx context.Context, appLog *slog.Logger) {
	p := metrics.Init(metrics.Config{
		Enabled: true,
		Addr:    os.Getenv("METRICS_ADDR"),
		Path:    os.Getenv("METRICS_PATH"),
		Build: metrics.BuildInfo{
			Version:   os.Getenv("BUILD_VERSION"),
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
		Collectors: observability.Collectors(),
	})
	p.Serve(ctx, appLog)
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
