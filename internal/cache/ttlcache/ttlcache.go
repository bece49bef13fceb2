// Package ttlcache memoizes computations by key with a per-entry TTL, using
// an optional external backend first and process memory otherwise.
package ttlcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mohammed-shakir/hazard-aggregator/internal/cache"
	"github.com/mohammed-shakir/hazard-aggregator/internal/cache/keys"
	"github.com/mohammed-shakir/hazard-aggregator/internal/core/observability"
)

type Options struct {
	// Layer labels hit/miss metrics, e.g. "fetch" or "memo".
	Layer string
	// MaxEntries bounds the in-memory store with LRU eviction; 0 is unbounded.
	MaxEntries int
	// Backend is consulted before memory when set.
	Backend   cache.Backend
	Namespace string
	OpTimeout time.Duration
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

type entry struct {
	expires time.Time
	val     any
}

type store interface {
	get(key string) (entry, bool)
	put(key string, e entry)
	size() int
	purge() store
}

type mapStore map[string]entry

func (m mapStore) get(k string) (entry, bool) {
	e, ok := m[k]
	return e, ok
}
func (m mapStore) put(k string, e entry) { m[k] = e }
func (m mapStore) size() int             { return len(m) }
func (m mapStore) purge() store          { return mapStore{} }

type lruStore struct{ c *lru.Cache[string, entry] }

func (s lruStore) get(k string) (entry, bool) { return s.c.Get(k) }
func (s lruStore) put(k string, e entry)      { s.c.Add(k, e) }
func (s lruStore) size() int                  { return s.c.Len() }
func (s lruStore) purge() store               { s.c.Purge(); return s }

// Cache is safe for concurrent use. Reads and writes of the local store are
// serialized; computations run outside the lock, so concurrent misses on one
// key may compute twice.
type Cache struct {
	mu    sync.Mutex
	local store
	epoch int64

	layer     string
	backend   cache.Backend
	namespace string
	opTimeout time.Duration
	clock     clockwork.Clock
	log       *slog.Logger
}

func New(opts Options) *Cache {
	c := &Cache{
		layer:     opts.Layer,
		backend:   opts.Backend,
		namespace: opts.Namespace,
		opTimeout: opts.OpTimeout,
		clock:     opts.Clock,
		log:       opts.Logger,
	}
	if c.layer == "" {
		c.layer = "memo"
	}
	if c.opTimeout <= 0 {
		c.opTimeout = 250 * time.Millisecond
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.local = mapStore{}
	if opts.MaxEntries > 0 {
		l, err := lru.New[string, entry](opts.MaxEntries)
		if err == nil {
			c.local = lruStore{c: l}
		}
	}
	return c
}

// Get returns a live in-memory value.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.local.get(key)
	if !ok || !e.expires.After(c.clock.Now()) {
		return nil, false
	}
	return e.val, true
}

// Set stores val in memory until now+ttl, replacing any previous entry.
func (c *Cache) Set(key string, val any, ttl time.Duration) {
	c.mu.Lock()
	c.local.put(key, entry{expires: c.clock.Now().Add(ttl), val: val})
	c.mu.Unlock()
}

func (c *Cache) setIfEpoch(epoch int64, key string, val any, ttl time.Duration) {
	c.mu.Lock()
	if c.epoch == epoch {
		c.local.put(key, entry{expires: c.clock.Now().Add(ttl), val: val})
	}
	c.mu.Unlock()
}

// Advance moves the cache to a newer epoch, dropping every in-memory entry
// and orphaning backend entries written under older epochs. Epochs only move
// forward; stale or repeated values report false.
func (c *Cache) Advance(epoch int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch <= c.epoch {
		return false
	}
	c.epoch = epoch
	c.local = c.local.purge()
	return true
}

func (c *Cache) Epoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

func (c *Cache) Layer() string { return c.layer }

// Len counts stored entries, live or expired.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local.size()
}

type codec struct {
	enc func(any) ([]byte, error)
	dec func([]byte) (any, error)
}

// Remember returns the cached value for key or computes, stores and returns
// it. Errors from compute are returned and never cached. Values travel
// through the backend as JSON.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	cd := codec{
		enc: func(v any) ([]byte, error) { return json.Marshal(v) },
		dec: func(b []byte) (any, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
	v, err := c.remember(ctx, key, ttl, func(ctx context.Context) (any, error) { return compute(ctx) }, cd)
	if err != nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, nil
	}
	return t, nil
}

// RememberBytes is Remember for raw payloads; the backend stores the bytes
// verbatim.
func (c *Cache) RememberBytes(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	cd := codec{
		enc: func(v any) ([]byte, error) {
			b, _ := v.([]byte)
			return b, nil
		},
		dec: func(b []byte) (any, error) { return b, nil },
	}
	v, err := c.remember(ctx, key, ttl, func(ctx context.Context) (any, error) { return compute(ctx) }, cd)
	if err != nil {
		return nil, err
	}
	b, _ := v.([]byte)
	return b, nil
}

func (c *Cache) remember(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error), cd codec) (any, error) {
	epoch := c.Epoch()
	if c.backend != nil {
		if v, handled, err := c.rememberBackend(ctx, epoch, key, ttl, compute, cd); handled {
			return v, err
		}
	}

	if v, ok := c.Get(key); ok {
		observability.IncCacheHit(c.layer)
		return v, nil
	}
	observability.IncCacheMiss(c.layer)

	v, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.setIfEpoch(epoch, key, v, ttl)
	return v, nil
}

// rememberBackend serves key through the external store. handled=false means
// the backend could not be read and the caller should use memory instead.
func (c *Cache) rememberBackend(ctx context.Context, epoch int64, key string, ttl time.Duration, compute func(context.Context) (any, error), cd codec) (val any, handled bool, err error) {
	bkey := keys.Backend(c.namespace, key)
	if epoch > 0 {
		bkey = keys.Backend(c.namespace, "e"+strconv.FormatInt(epoch, 10)+":"+key)
	}

	rctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	b, found, gerr := c.backend.Get(rctx, bkey)
	cancel()
	if gerr != nil {
		c.log.DebugContext(ctx, "cache backend read failed; using memory", "layer", c.layer, "err", gerr)
		return nil, false, nil
	}
	if found {
		if v, derr := cd.dec(b); derr == nil {
			observability.IncCacheHit(c.layer)
			return v, true, nil
		}
	}
	if v, ok := c.Get(key); ok {
		observability.IncCacheHit(c.layer)
		return v, true, nil
	}
	observability.IncCacheMiss(c.layer)

	v, err := compute(ctx)
	if err != nil {
		return nil, true, err
	}
	out, eerr := cd.enc(v)
	if eerr == nil {
		wctx, cancel := context.WithTimeout(ctx, c.opTimeout)
		eerr = c.backend.SetEx(wctx, bkey, ttl, out)
		cancel()
	}
	if eerr != nil {
		c.log.DebugContext(ctx, "cache backend write failed; storing in memory", "layer", c.layer, "err", eerr)
		c.setIfEpoch(epoch, key, v, ttl)
	}
	return v, true, nil
}
