// Package logger builds the zerolog root logger for hazardd and carries
// per-request fields (request id, component, adapter) through a context so
// every slog call made with that context is tagged.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	// SampleN keeps one line in N; zero logs everything.
	SampleN   int
	Service   string
	Component string
}

type field string

const (
	fieldRequestID field = "request_id"
	fieldComponent field = "component"
	fieldAdapter   field = "adapter"
)

// contextFields is the order fields are attached to a line.
var contextFields = [...]field{fieldRequestID, fieldComponent, fieldAdapter}

func with(ctx context.Context, f field, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, f, v)
}

func lookup(ctx context.Context, f field) string {
	v, _ := ctx.Value(f).(string)
	return v
}

// WithRequestID tags ctx with reqID, minting a fresh id when it is empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, fieldRequestID, reqID)
}

// WithComponent names the pipeline stage (hazards, feeds, geocode...).
func WithComponent(ctx context.Context, component string) context.Context {
	return with(ctx, fieldComponent, component)
}

// WithAdapter tags log lines emitted while a feed adapter is running.
func WithAdapter(ctx context.Context, adapter string) context.Context {
	return with(ctx, fieldAdapter, adapter)
}

func RequestID(ctx context.Context) string { return lookup(ctx, fieldRequestID) }

// NewID returns 16 hex chars of randomness.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// level maps the configured name onto zerolog; anything unknown is info.
func (c Config) level() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (c Config) sampler() zerolog.Sampler {
	if c.SampleN <= 0 {
		return nil
	}
	n := uint32(math.MaxUint32)
	if uint64(c.SampleN) < math.MaxUint32 {
		n = uint32(c.SampleN)
	}
	return &zerolog.BasicSampler{N: n}
}

// Build returns the process root logger writing JSON lines to out (stdout
// when nil), or human-readable lines when cfg.Console is set. The level is
// applied globally so the slog bridge sees the same threshold.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(cfg.level())

	root := zerolog.New(out)
	if s := cfg.sampler(); s != nil {
		root = root.Sample(s)
	}
	b := root.With().Timestamp()
	for k, v := range map[string]string{"service": cfg.Service, "component": cfg.Component} {
		if v != "" {
			b = b.Str(k, v)
		}
	}
	return b.Logger()
}

// FromContext derives a child of parent carrying the context fields set on
// ctx. A nil parent yields a discarding logger.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	l := zerolog.Nop()
	if parent != nil {
		l = *parent
	}
	b := l.With()
	for _, f := range contextFields {
		if v := lookup(ctx, f); v != "" {
			b = b.Str(string(f), v)
		}
	}
	l = b.Logger()
	return &l
}
