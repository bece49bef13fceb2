package ttlcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/redisstore"
)

var t0 = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)

func counter(n *atomic.Int32, v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n.Add(1)
		return v, nil
	}
}

func TestRemember_HitWithinTTL_RecomputeAfterExpiry(t *testing.T) {
	fc := clockwork.NewFakeClockAt(t0)
	c := New(Options{Clock: fc})
	ctx := context.Background()
	var calls atomic.Int32

	for range 3 {
		v, err := Remember(ctx, c, "k", 5*time.Minute, counter(&calls, "a"))
		if err != nil || v != "a" {
			t.Fatalf("v=%q err=%v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}

	fc.Advance(5*time.Minute - time.Second)
	_, _ = Remember(ctx, c, "k", 5*time.Minute, counter(&calls, "a"))
	if calls.Load() != 1 {
		t.Fatalf("entry expired early; calls=%d", calls.Load())
	}

	// expires_at == now is no longer live
	fc.Advance(time.Second)
	v, _ := Remember(ctx, c, "k", 5*time.Minute, counter(&calls, "b"))
	if calls.Load() != 2 || v != "b" {
		t.Fatalf("after expiry calls=%d v=%q", calls.Load(), v)
	}
	if c.Len() != 1 {
		t.Fatalf("expired entry should be overwritten in place; len=%d", c.Len())
	}
}

func TestRemember_ErrorsAreNotCached(t *testing.T) {
	c := New(Options{Clock: clockwork.NewFakeClockAt(t0)})
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := Remember(ctx, c, "k", time.Minute, func(context.Context) (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	v, err := Remember(ctx, c, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}

func TestRemember_BoundedLRU(t *testing.T) {
	c := New(Options{MaxEntries: 2, Clock: clockwork.NewFakeClockAt(t0)})
	for _, k := range []string{"a", "b", "c"} {
		c.Set(k, k, time.Minute)
	}
	if c.Len() != 2 {
		t.Fatalf("len=%d want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
	if v, ok := c.Get("c"); !ok || v != "c" {
		t.Fatalf("newest entry missing")
	}
}

func TestRemember_ConcurrentCallersAgree(t *testing.T) {
	c := New(Options{})
	ctx := context.Background()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Remember(ctx, c, "shared", time.Minute, counter(&calls, "same"))
			if err != nil || v != "same" {
				t.Errorf("v=%q err=%v", v, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() < 1 {
		t.Fatalf("compute never ran")
	}
	if v, ok := c.Get("shared"); !ok || v != "same" {
		t.Fatalf("entry missing after concurrent fill")
	}
}

type event struct {
	ID   string   `json:"id"`
	Dist *float64 `json:"distance_km,omitempty"`
}

func TestRemember_BackendSharedAcrossInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer func() { _ = rc.Close() }()

	ctx := context.Background()
	var calls atomic.Int32
	compute := func(context.Context) ([]event, error) {
		calls.Add(1)
		d := 3.3
		return []event{{ID: "q1", Dist: &d}}, nil
	}

	a := New(Options{Backend: rc, Namespace: "ns:"})
	b := New(Options{Backend: rc, Namespace: "ns:"})

	if _, err := Remember(ctx, a, "memo:k", time.Minute, compute); err != nil {
		t.Fatalf("a: %v", err)
	}
	got, err := Remember(ctx, b, "memo:k", time.Minute, compute)
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1 (second instance should hit the backend)", calls.Load())
	}
	if len(got) != 1 || got[0].ID != "q1" || got[0].Dist == nil || *got[0].Dist != 3.3 {
		t.Fatalf("decoded=%+v", got)
	}
	if !mr.Exists("ns:memo:k") {
		t.Fatalf("backend key not namespaced")
	}
	if ttl := mr.TTL("ns:memo:k"); ttl != time.Minute {
		t.Fatalf("backend ttl=%s", ttl)
	}
	if a.Len() != 0 {
		t.Fatalf("healthy backend must not populate memory")
	}
}

func TestRememberBytes_StoresRawPayload(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer func() { _ = rc.Close() }()

	c := New(Options{Layer: "fetch", Backend: rc, Namespace: "disasters:cache:"})
	url := "https://example.test/feed?x=1"
	body := []byte(`{"features":[]}`)
	got, err := c.RememberBytes(context.Background(), url, time.Minute, func(context.Context) ([]byte, error) { return body, nil })
	if err != nil || string(got) != string(body) {
		t.Fatalf("got=%q err=%v", got, err)
	}
	raw, err := mr.Get("disasters:cache:" + url)
	if err != nil || raw != string(body) {
		t.Fatalf("backend raw=%q err=%v", raw, err)
	}
}

type brokenBackend struct{ reads, writes atomic.Int32 }

func (b *brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	b.reads.Add(1)
	return nil, false, errors.New("connection refused")
}

func (b *brokenBackend) SetEx(context.Context, string, time.Duration, []byte) error {
	b.writes.Add(1)
	return errors.New("connection refused")
}

func TestRemember_BackendFailureFallsBackToMemory(t *testing.T) {
	bb := &brokenBackend{}
	c := New(Options{Backend: bb, Clock: clockwork.NewFakeClockAt(t0)})
	ctx := context.Background()
	var calls atomic.Int32

	for range 2 {
		v, err := Remember(ctx, c, "k", time.Minute, counter(&calls, "x"))
		if err != nil || v != "x" {
			t.Fatalf("v=%q err=%v", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("memory fallback should serve the second call; calls=%d", calls.Load())
	}
	if bb.writes.Load() != 0 {
		t.Fatalf("no write expected after a failed read; writes=%d", bb.writes.Load())
	}
}

type writeOnlyBroken struct{}

func (writeOnlyBroken) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (writeOnlyBroken) SetEx(context.Context, string, time.Duration, []byte) error {
	return errors.New("read only replica")
}

func TestRemember_BackendWriteFailureKeepsValueInMemory(t *testing.T) {
	c := New(Options{Backend: writeOnlyBroken{}})
	ctx := context.Background()
	var calls atomic.Int32
	_, _ = Remember(ctx, c, "k", time.Minute, counter(&calls, "x"))
	_, _ = Remember(ctx, c, "k", time.Minute, counter(&calls, "x"))
	if calls.Load() != 1 {
		t.Fatalf("calls=%d want 1", calls.Load())
	}
}

func TestAdvance_DropsMemoryAndMovesForwardOnly(t *testing.T) {
	c := New(Options{Clock: clockwork.NewFakeClockAt(t0), MaxEntries: 8})
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = Remember(ctx, c, "k", time.Hour, counter(&calls, "a"))
	if !c.Advance(10) {
		t.Fatalf("first advance should apply")
	}
	if c.Len() != 0 {
		t.Fatalf("memory not purged; len=%d", c.Len())
	}
	v, _ := Remember(ctx, c, "k", time.Hour, counter(&calls, "b"))
	if v != "b" || calls.Load() != 2 {
		t.Fatalf("v=%q calls=%d", v, calls.Load())
	}

	if c.Advance(10) || c.Advance(5) {
		t.Fatalf("repeated or older epochs must be ignored")
	}
	if c.Epoch() != 10 || c.Len() != 1 {
		t.Fatalf("epoch=%d len=%d", c.Epoch(), c.Len())
	}
}

func TestAdvance_ComputeSpanningEpochIsNotStored(t *testing.T) {
	c := New(Options{Clock: clockwork.NewFakeClockAt(t0)})
	ctx := context.Background()

	v, err := Remember(ctx, c, "k", time.Hour, func(context.Context) (string, error) {
		c.Advance(1)
		return "stale", nil
	})
	if err != nil || v != "stale" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("value computed before the epoch change was stored")
	}
}

func TestAdvance_ScopesBackendKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer func() { _ = rc.Close() }()

	ctx := context.Background()
	var calls atomic.Int32
	c := New(Options{Backend: rc, Namespace: "ns:"})

	_, _ = Remember(ctx, c, "memo:k", time.Minute, counter(&calls, "a"))
	c.Advance(42)
	v, _ := Remember(ctx, c, "memo:k", time.Minute, counter(&calls, "b"))
	if v != "b" || calls.Load() != 2 {
		t.Fatalf("old epoch entry served: v=%q calls=%d", v, calls.Load())
	}
	if !mr.Exists("ns:e42:memo:k") {
		t.Fatalf("epoch key missing; keys=%v", mr.Keys())
	}
}
