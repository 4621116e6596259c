// Package cache implements a time-boxed result cache with per-key single-flight
// and a minimum interval between real fetches.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Source tells where a Result came from.
type Source string

const (
	// SourceFresh means the value was fetched by this call (or a call it joined).
	SourceFresh Source = "fresh"
	// SourceCache means the value was still valid and served from the cache.
	SourceCache Source = "cache"
	// SourceStale means a fetch for the key was outstanding and the last value
	// was returned instead of waiting.
	SourceStale Source = "stale"
)

// Result is a value together with its provenance.
type Result[T any] struct {
	Value     T
	Source    Source
	FetchedAt time.Time
}

// Options control a single GetOrFetch call.
type Options struct {
	TTL   time.Duration // validity window of a cached value; 0 disables caching
	Force bool          // bypass cache and cooldown
}

// Persister stores encoded entries outside the process.
type Persister interface {
	LoadCacheEntry(key string) (data []byte, fetchedAt time.Time, ok bool, err error)
	SaveCacheEntry(key string, data []byte, fetchedAt time.Time) error
	DeleteCacheEntry(key string) error
	DeleteCacheEntries(prefix string) error
}

type config struct {
	cooldown time.Duration
	now      func() time.Time
	persist  Persister
}

// Option configures a Coordinator.
type Option func(*config)

// WithCooldown sets the minimum interval between real fetches of a key.
func WithCooldown(d time.Duration) Option {
	return func(c *config) { c.cooldown = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithPersister makes entries survive restarts.
func WithPersister(p Persister) Option {
	return func(c *config) { c.persist = p }
}

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Coordinator caches values of type T by key. The zero value is not usable;
// create one with New.
type Coordinator[T any] struct {
	cfg   config
	group singleflight.Group

	mu        sync.Mutex
	entries   map[string]entry[T]
	lastFetch map[string]time.Time
	inflight  map[string]int
	gen       map[string]uint64
}

// New creates an empty Coordinator.
func New[T any](opts ...Option) *Coordinator[T] {
	cfg := config{now: time.Now}
	for _, o := range opts {
		o(&cfg)
	}
	return &Coordinator[T]{
		cfg:       cfg,
		entries:   make(map[string]entry[T]),
		lastFetch: make(map[string]time.Time),
		inflight:  make(map[string]int),
		gen:       make(map[string]uint64),
	}
}

// GetOrFetch returns the cached value for key or calls fetch to produce it.
//
// While a fetch for key is outstanding no second fetch is issued: callers that
// have a previous value get it back as SourceStale, callers without one wait
// for the outstanding fetch. Within the cooldown after a real fetch the cached
// value is served even if its TTL has passed. Force always fetches.
func (c *Coordinator[T]) GetOrFetch(ctx context.Context, key string, opts Options, fetch func(context.Context) (T, error)) (Result[T], error) {
	if opts.Force {
		return c.fetch(ctx, key, fetch)
	}

	c.mu.Lock()
	e, ok := c.lookupLocked(key)
	if ok {
		now := c.cfg.now()
		if c.inflight[key] > 0 {
			c.mu.Unlock()
			return Result[T]{Value: e.value, Source: SourceStale, FetchedAt: e.fetchedAt}, nil
		}
		if last, seen := c.lastFetch[key]; seen && now.Sub(last) < c.cfg.cooldown {
			c.mu.Unlock()
			return Result[T]{Value: e.value, Source: SourceCache, FetchedAt: e.fetchedAt}, nil
		}
		if now.Sub(e.fetchedAt) < opts.TTL {
			c.mu.Unlock()
			return Result[T]{Value: e.value, Source: SourceCache, FetchedAt: e.fetchedAt}, nil
		}
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key, fetch)
	})
	if err != nil {
		var zero Result[T]
		return zero, err
	}
	return v.(Result[T]), nil
}

func (c *Coordinator[T]) fetch(ctx context.Context, key string, fetch func(context.Context) (T, error)) (Result[T], error) {
	c.mu.Lock()
	gen := c.gen[key]
	c.inflight[key]++
	c.mu.Unlock()

	v, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[key] != gen {
		// Invalidated while in flight: hand the value to this caller but keep
		// it out of the cache.
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Value: v, Source: SourceFresh, FetchedAt: c.cfg.now()}, nil
	}
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	if err != nil {
		return Result[T]{}, err
	}

	now := c.cfg.now()
	c.entries[key] = entry[T]{value: v, fetchedAt: now}
	c.lastFetch[key] = now
	c.saveLocked(key, v, now)
	return Result[T]{Value: v, Source: SourceFresh, FetchedAt: now}, nil
}

// lookupLocked checks memory, then the persister. c.mu must be held.
func (c *Coordinator[T]) lookupLocked(key string) (entry[T], bool) {
	if e, ok := c.entries[key]; ok {
		return e, true
	}
	if c.cfg.persist == nil {
		return entry[T]{}, false
	}
	data, fetchedAt, ok, err := c.cfg.persist.LoadCacheEntry(key)
	if err != nil {
		slog.Warn("cache load failed", "key", key, "error", err)
		return entry[T]{}, false
	}
	if !ok {
		return entry[T]{}, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Warn("cache entry undecodable", "key", key, "error", err)
		return entry[T]{}, false
	}
	e := entry[T]{value: v, fetchedAt: fetchedAt}
	c.entries[key] = e
	return e, true
}

func (c *Coordinator[T]) saveLocked(key string, v T, at time.Time) {
	if c.cfg.persist == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache entry unencodable", "key", key, "error", err)
		return
	}
	if err := c.cfg.persist.SaveCacheEntry(key, data, at); err != nil {
		slog.Warn("cache save failed", "key", key, "error", err)
	}
}

// Invalidate drops one key.
func (c *Coordinator[T]) Invalidate(key string) {
	c.invalidate(func(k string) bool { return k == key }, func(p Persister) error {
		return p.DeleteCacheEntry(key)
	})
}

// InvalidatePrefix drops every key starting with prefix, including cooldown
// and in-flight bookkeeping.
func (c *Coordinator[T]) InvalidatePrefix(prefix string) {
	c.invalidate(func(k string) bool { return strings.HasPrefix(k, prefix) }, func(p Persister) error {
		return p.DeleteCacheEntries(prefix)
	})
}

// Reset drops everything.
func (c *Coordinator[T]) Reset() {
	c.InvalidatePrefix("")
}

func (c *Coordinator[T]) invalidate(match func(string) bool, drop func(Persister) error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make(map[string]struct{})
	for k := range c.entries {
		keys[k] = struct{}{}
	}
	for k := range c.lastFetch {
		keys[k] = struct{}{}
	}
	for k := range c.inflight {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if !match(k) {
			continue
		}
		delete(c.entries, k)
		delete(c.lastFetch, k)
		delete(c.inflight, k)
		c.gen[k]++
		c.group.Forget(k)
	}
	if c.cfg.persist != nil {
		if err := drop(c.cfg.persist); err != nil {
			slog.Warn("cache delete failed", "error", err)
		}
	}
}
