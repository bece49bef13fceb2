package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Upstreams holds the fixed endpoints of every external data source.
type Upstreams struct {
	USGSURL      string `yaml:"usgs_url"`
	NWSURL       string `yaml:"nws_url"`
	ReliefWebURL string `yaml:"reliefweb_url"`
	ReliefWebApp string `yaml:"reliefweb_app"`
	NominatimURL string `yaml:"nominatim_url"`
	OverpassURL  string `yaml:"overpass_url"`
	IPAPIURL     string `yaml:"ipapi_url"`
	UserAgent    string `yaml:"user_agent"`
}

type Timeouts struct {
	Feed     time.Duration `yaml:"feed"`
	Overpass time.Duration `yaml:"overpass"`
	Locate   time.Duration `yaml:"locate"`
}

type HitEventsCfg struct {
	Enabled   bool
	Brokers   string
	Topic     string
	QueueSize int
}

// InvalidationCfg configures the cache flush consumer. Every replica needs
// every flush, so the group id defaults to one per host.
type InvalidationCfg struct {
	Enabled        bool
	Brokers        string
	Topic          string
	GroupID        string
	SessionTimeout time.Duration
	Heartbeat      time.Duration
	FromOldest     bool
}

type AdaptiveCfg struct {
	Enabled      bool
	H3Res        int
	HotThreshold float64
	HotHalfLife  time.Duration
	TTLWarm      time.Duration
	TTLHot       time.Duration
}

type Config struct {
	Addr     string
	LogLevel string

	RedisURL              string
	RedisAddr             string
	RedisPoolSize         int
	RedisDialTimeout      time.Duration
	RedisIOTimeout        time.Duration
	CacheNamespace        string
	CacheOpTimeout        time.Duration
	MemoryCacheMaxEntries int

	Upstreams Upstreams
	Timeouts  Timeouts

	DisastersTTL  time.Duration
	POIsTTL       time.Duration
	GeocodeTTL    time.Duration
	GeocodeBudget int

	HitEvents    HitEventsCfg
	Invalidation InvalidationCfg
	Adaptive     AdaptiveCfg
}

// file overlay; zero values leave env-derived settings untouched
type fileConfig struct {
	Upstreams Upstreams `yaml:"upstreams"`
	Timeouts  Timeouts  `yaml:"timeouts"`
}

func FromEnv() Config {
	res := getint("H3_RES", 7)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	disastersTTL := getduration("DISASTERS_TTL", 5*time.Minute)

	host, _ := os.Hostname()
	if host == "" {
		host = "local"
	}

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		RedisURL:              getenv("REDIS_URL", ""),
		RedisAddr:             getenv("REDIS_ADDR", ""),
		RedisPoolSize:         getint("REDIS_POOL_SIZE", 32),
		RedisDialTimeout:      getduration("REDIS_DIAL_TIMEOUT", 2*time.Second),
		RedisIOTimeout:        getduration("REDIS_IO_TIMEOUT", time.Second),
		CacheNamespace:        getenv("CACHE_NAMESPACE", "disasters:cache:"),
		CacheOpTimeout:        getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		MemoryCacheMaxEntries: getint("MEMORY_CACHE_MAX_ENTRIES", 0),

		Upstreams: Upstreams{
			USGSURL:      getenv("USGS_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			NWSURL:       getenv("NWS_URL", "https://api.weather.gov/alerts/active"),
			ReliefWebURL: getenv("RELIEFWEB_URL", "https://api.reliefweb.int/v1"),
			ReliefWebApp: getenv("RELIEFWEB_APPNAME", "apidoc"),
			NominatimURL: getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org/search"),
			OverpassURL:  getenv("OVERPASS_URL", "http://overpass-api.de/api/interpreter"),
			IPAPIURL:     getenv("IPAPI_URL", "http://ip-api.com/json"),
			UserAgent:    getenv("USER_AGENT", "hazardd/1.0 (disaster-preparedness-assistant)"),
		},
		Timeouts: Timeouts{
			Feed:     getduration("FEED_TIMEOUT", 8*time.Second),
			Overpass: getduration("OVERPASS_TIMEOUT", 15*time.Second),
			Locate:   getduration("LOCATE_TIMEOUT", 5*time.Second),
		},

		DisastersTTL:  disastersTTL,
		POIsTTL:       getduration("POIS_TTL", 2*time.Minute),
		GeocodeTTL:    getduration("GEOCODE_TTL", 24*time.Hour),
		GeocodeBudget: getint("GEOCODE_BUDGET", 8),

		HitEvents: HitEventsCfg{
			Enabled:   getbool("HIT_EVENTS_ENABLED", false),
			Brokers:   getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:     getenv("HIT_EVENTS_TOPIC", "hazard-lookups"),
			QueueSize: getint("HIT_EVENTS_QUEUE", 1024),
		},
		Invalidation: InvalidationCfg{
			Enabled:        getbool("INVALIDATION_ENABLED", false),
			Brokers:        getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:          getenv("INVALIDATION_TOPIC", "hazard-cache-invalidation"),
			GroupID:        getenv("INVALIDATION_GROUP_ID", "hazardd-"+host),
			SessionTimeout: getduration("INVALIDATION_SESSION_TIMEOUT", 30*time.Second),
			Heartbeat:      getduration("INVALIDATION_HEARTBEAT", 3*time.Second),
			FromOldest:     getbool("INVALIDATION_FROM_OLDEST", false),
		},
		Adaptive: AdaptiveCfg{
			Enabled:      getbool("ADAPTIVE_ENABLED", false),
			H3Res:        res,
			HotThreshold: getfloat("HOT_THRESHOLD", 10.0),
			HotHalfLife:  getduration("HOT_HALF_LIFE", time.Minute),
			TTLWarm:      getduration("ADAPTIVE_TTL_WARM", 2*disastersTTL),
			TTLHot:       getduration("ADAPTIVE_TTL_HOT", 4*disastersTTL),
		},
	}
}

// Load reads env settings and then applies the YAML file named by
// CONFIG_FILE, if any.
func Load() (Config, error) {
	cfg := FromEnv()
	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := ApplyYAML(&cfg, b); err != nil {
		return cfg, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// ApplyYAML overlays non-empty upstream and timeout settings from b.
func ApplyYAML(cfg *Config, b []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	u := fc.Upstreams
	overlay(&cfg.Upstreams.USGSURL, u.USGSURL)
	overlay(&cfg.Upstreams.NWSURL, u.NWSURL)
	overlay(&cfg.Upstreams.ReliefWebURL, u.ReliefWebURL)
	overlay(&cfg.Upstreams.ReliefWebApp, u.ReliefWebApp)
	overlay(&cfg.Upstreams.NominatimURL, u.NominatimURL)
	overlay(&cfg.Upstreams.OverpassURL, u.OverpassURL)
	overlay(&cfg.Upstreams.IPAPIURL, u.IPAPIURL)
	overlay(&cfg.Upstreams.UserAgent, u.UserAgent)

	if fc.Timeouts.Feed > 0 {
		cfg.Timeouts.Feed = fc.Timeouts.Feed
	}
	if fc.Timeouts.Overpass > 0 {
		cfg.Timeouts.Overpass = fc.Timeouts.Overpass
	}
	if fc.Timeouts.Locate > 0 {
		cfg.Timeouts.Locate = fc.Timeouts.Locate
	}
	return nil
}

func overlay(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
