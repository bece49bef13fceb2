package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Config struct {
	BaseURL         string
	Concurrency     int
	Duration        time.Duration
	ZipfS           float64
	ZipfV           float64
	OriginCount     int
	POIRatio        float64
	RadiusKm        float64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	OriginFile      string
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8090", "hazardd base URL")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "Concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.OriginCount, "origins", 64, "Distinct query origins in pool")
	flag.Float64Var(&cfg.POIRatio, "poi-ratio", 0.3, "Fraction of requests sent to /api/pois")
	flag.Float64Var(&cfg.RadiusKm, "radius-km", 100, "radius_km for disaster lookups")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 30*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.StringVar(&cfg.OriginFile, "origins-file", "", "Optional CSV file (id,lat,lon) of query origins")
	flag.Parse()
	return cfg
}

type Origin struct {
	ID  string
	Lat float64
	Lon float64
}

// places often hit by natural hazards; the first ones become the hot set
var hubs = []Origin{
	{"delhi", 28.61, 77.23},
	{"tokyo", 35.68, 139.69},
	{"manila", 14.60, 120.98},
	{"los-angeles", 34.05, -118.24},
	{"istanbul", 41.01, 28.98},
	{"jakarta", -6.21, 106.85},
}

// makeOrigins jitters points around the hubs; the pool is ordered hot first
// so a Zipf index favours the busiest areas.
func makeOrigins(count int, r *rand.Rand) []Origin {
	out := make([]Origin, 0, count)
	for i := 0; len(out) < count; i++ {
		h := hubs[i%len(hubs)]
		spread := 0.02
		if i >= len(hubs)*2 {
			spread = 1.5
		}
		out = append(out, Origin{
			ID:  fmt.Sprintf("%s-%d", h.ID, i),
			Lat: h.Lat + (r.Float64()-0.5)*spread,
			Lon: h.Lon + (r.Float64()-0.5)*spread,
		})
	}
	return out
}

func loadOriginsCSV(path string) ([]Origin, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open origins: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idIdx, okID := col["id"]
	latIdx, okLat := col["lat"]
	lonIdx, okLon := col["lon"]
	if !okID || !okLat || !okLon {
		return nil, fmt.Errorf("origins csv: expected columns id,lat,lon; got %v", header)
	}

	var out []Origin
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(rec[latIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lat %q: %w", rec[latIdx], err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(rec[lonIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse lon %q: %w", rec[lonIdx], err)
		}
		out = append(out, Origin{ID: strings.TrimSpace(rec[idIdx]), Lat: lat, Lon: lon})
	}
	return out, nil
}

// requestURL builds either a disaster or a POI lookup for o.
func requestURL(base string, o Origin, poi bool, radiusKm float64) (string, string) {
	v := url.Values{}
	v.Set("lat", strconv.FormatFloat(o.Lat, 'f', 4, 64))
	v.Set("lon", strconv.FormatFloat(o.Lon, 'f', 4, 64))
	base = strings.TrimRight(base, "/")
	if poi {
		v.Set("kind", "hospital")
		v.Set("radius_m", "10000")
		return "pois", base + "/api/pois?" + v.Encode()
	}
	v.Set("radius_km", strconv.FormatFloat(radiusKm, 'f', -1, 64))
	return "disasters", base + "/api/disasters?" + v.Encode()
}

type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	Endpoint  string
	OriginID  string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Origins       int       `json:"origins"`
	POIRatio      float64   `json:"poi_ratio"`
	Target        string    `json:"target"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}

	seed := time.Now().UnixNano()
	r := rand.New(rand.NewSource(seed))

	var origins []Origin
	if strings.TrimSpace(cfg.OriginFile) != "" {
		loaded, err := loadOriginsCSV(cfg.OriginFile)
		if err != nil {
			log.Printf("WARN: failed to load origins from %q: %v; falling back to synthetic origins", cfg.OriginFile, err)
		} else {
			origins = loaded
		}
	}
	if len(origins) == 0 {
		origins = makeOrigins(cfg.OriginCount, r)
	}
	if len(origins) == 0 {
		log.Fatalf("no origins generated")
	}
	imax := uint64(len(origins)) - 1

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "endpoint", "origin"})
		var agg aggregatedResult
		for s := range samplesChan {
			agg.total++
			ms := float64(s.Latency.Microseconds()) / 1000.0
			if s.ErrorMsg == "" {
				agg.success++
				agg.latMs = append(agg.latMs, ms)
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", ms),
				strconv.Itoa(s.Status),
				s.ErrorMsg,
				s.Endpoint,
				s.OriginID,
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) origins=%d poi_ratio=%.2f",
		cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(origins), cfg.POIRatio)

	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	for workerID := range cfg.Concurrency {
		go func(id int) {
			defer wg.Done()
			rw := rand.New(rand.NewSource(seed + int64(id) + 1))
			zipf := rand.NewZipf(rw, cfg.ZipfS, cfg.ZipfV, imax)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				idx := int(zipf.Uint64())
				if idx >= len(origins) {
					continue
				}
				o := origins[idx]
				endpoint, target := requestURL(cfg.BaseURL, o, rw.Float64() < cfg.POIRatio, cfg.RadiusKm)

				start := time.Now()
				s := sample{Timestamp: start, Endpoint: endpoint, OriginID: o.ID}
				req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				req.Header.Set("Accept", "application/json")
				resp, err := httpClient.Do(req)
				s.Latency = time.Since(start)
				if err != nil {
					s.ErrorMsg = err.Error()
				} else {
					s.Status = resp.StatusCode
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode < 200 || resp.StatusCode >= 300 {
						s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
					}
				}

				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
			}
		}(workerID)
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	out := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Origins:       len(origins),
		POIRatio:      cfg.POIRatio,
		Target:        cfg.BaseURL,
	}

	if jsonFile, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		out.TotalRequests, out.SuccessCount, out.ErrorCount, out.ThroughputRPS, out.P50Ms, out.P95Ms, out.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
