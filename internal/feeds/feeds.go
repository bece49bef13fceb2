// Package feeds defines the adapter capability shared by every upstream
// source and runs adapters side by side.
package feeds

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
	mylog "github.com/mohammed-shakir/hazard-aggregator/internal/logger"
)

// Query is the geographic and temporal scope handed to every adapter.
type Query struct {
	Lat          float64
	Lon          float64
	RadiusKm     float64
	LookbackDays int
	Country      string
}

// Record is a raw source record before normalization. Adapters fill the
// fields their upstream provides and leave the rest zero.
type Record struct {
	Source      string
	Type        string
	Title       string
	Place       string
	Headline    string
	Description string
	Time        string
	Onset       string
	Expires     string
	Date        string
	Lat         *float64
	Lon         *float64
	URL         string
	Mag         *float64
	Magnitude   *float64
	Severity    string
	Areas       string
	Raw         any
}

// Result is the outcome of one adapter call: either the records it produced
// or a typed unavailability with its cause.
type Result struct {
	Source  string
	Records []Record
	Err     error
}

var ErrUnavailable = errors.New("source unavailable")

func Ok(source string, recs []Record) Result {
	return Result{Source: source, Records: recs}
}

// Unavailable wraps cause so that errors.Is(r.Err, ErrUnavailable) holds.
func Unavailable(source string, cause error) Result {
	if cause == nil {
		cause = errors.New("no data")
	}
	return Result{Source: source, Err: errors.Join(ErrUnavailable, cause)}
}

func (r Result) Available() bool { return r.Err == nil }

// Adapter produces raw records for a query. Implementations never panic on
// upstream data and report failure through Result.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, q Query) Result
}

// FanOut runs every adapter concurrently and returns their results in
// adapter order, so downstream dedup sees a deterministic merge order.
func FanOut(ctx context.Context, log *slog.Logger, adapters []Adapter, q Query) []Result {
	if log == nil {
		log = slog.Default()
	}
	out := make([]Result, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			out[i] = runOne(ctx, log, a, q)
		}(i, a)
	}
	wg.Wait()
	return out
}

func runOne(ctx context.Context, log *slog.Logger, a Adapter, q Query) (res Result) {
	name := a.Name()
	actx := mylog.WithAdapter(ctx, name)
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.ErrorContext(actx, "adapter panicked", "panic", rec)
			res = Unavailable(name, errors.New("adapter panic"))
		}
		outcome := "ok"
		if !res.Available() {
			outcome = "unavailable"
			log.WarnContext(actx, "source unavailable", "err", res.Err, "duration", time.Since(start))
		}
		observability.ObserveAdapter(name, outcome)
	}()
	res = a.Fetch(actx, q)
	if res.Source == "" {
		res.Source = name
	}
	return res
}

// Records concatenates the records of available results in order.
func Records(results []Result) []Record {
	n := 0
	for _, r := range results {
		n += len(r.Records)
	}
	out := make([]Record, 0, n)
	for _, r := range results {
		if r.Available() {
			out = append(out, r.Records...)
		}
	}
	return out
}
