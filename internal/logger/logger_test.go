package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for ln := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad json line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_CarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "hazardd"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithComponent(ctx, "feeds")
	ctx = WithAdapter(ctx, "seismic")
	l.WarnContext(ctx, "adapter unavailable", "err", errors.New("boom"), "n", 3)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	got := lines[0]
	want := map[string]any{
		"request_id": "req-1",
		"component":  "feeds",
		"adapter":    "seismic",
		"service":    "hazardd",
		"level":      "warn",
		"msg":        "adapter unavailable",
		"err":        "boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%v want %v (line=%v)", k, got[k], v, got)
		}
	}
	if got["n"] != float64(3) {
		t.Fatalf("n=%v", got["n"])
	}
}

func TestSlogBridge_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Error("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("unexpected lines: %v", lines)
	}
	Build(Config{Level: "info"}, &buf)
}

func TestSlogBridge_GroupsFlatten(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).WithGroup("stage").With("name", "rank")

	l.Info("done", "kept", 4)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	if lines[0]["stage.name"] != "rank" || lines[0]["stage.kept"] != float64(4) {
		t.Fatalf("group keys missing: %v", lines[0])
	}
}

func TestRequestID_GeneratedWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id=%q want 16 hex chars", id)
	}
}

func TestFromContext_EmptyFieldsAreOmitted(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)

	ctx := WithComponent(context.Background(), "")
	ctx = WithAdapter(ctx, "reliefweb")
	FromContext(ctx, &zl).Info().Msg("fetched")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	if _, ok := lines[0]["component"]; ok {
		t.Fatalf("empty component logged: %v", lines[0])
	}
	if lines[0]["adapter"] != "reliefweb" {
		t.Fatalf("adapter=%v", lines[0]["adapter"])
	}

	// a nil parent discards
	FromContext(ctx, nil).Error().Msg("dropped")
	if n := len(decodeLines(t, &buf)); n != 1 {
		t.Fatalf("nil parent wrote: lines=%d", n)
	}
}
