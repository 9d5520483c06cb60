// Package cache provides the in-memory TTL caches used by the game: one long
// lived cache in front of the PokeAPI stat lookup and one short lived cache
// for per-user views.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultStatTTL   = 24 * time.Hour
	DefaultStatSweep = time.Hour

	DefaultAbsentTTL   = 10 * time.Minute
	DefaultAbsentSweep = 10 * time.Minute
)

// Options configures a TTLCache. A zero SweepInterval disables the background
// sweep; expired entries are then only dropped when read.
type Options struct {
	Name          string
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
	Logger        *slog.Logger
}

type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int    `json:"keys"`
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.storedAt) >= e.ttl
}

// TTLCache is safe for concurrent use. A single RWMutex guards the map; no
// lock is held while callers compute values.
type TTLCache[K comparable, V any] struct {
	name   string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.RWMutex
	items map[K]entry[V]

	hits   atomic.Uint64
	misses atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New[K comparable, V any](opts Options) *TTLCache[K, V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	c := &TTLCache[K, V]{
		name:   opts.Name,
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
		items:  make(map[K]entry[V]),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go c.sweepLoop(opts.SweepInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the value for key if it was set less than TTL ago. Expired
// entries are removed on the way out.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && !e.expired(now) {
		c.hits.Add(1)
		return e.value, true
	}
	if ok {
		c.mu.Lock()
		// Another writer may have refreshed the key in between.
		if cur, still := c.items[key]; still && cur.expired(now) {
			delete(c.items, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	return true
}

// Keys returns a snapshot of the keys that are currently live.
func (c *TTLCache[K, V]) Keys() []K {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]K, 0, len(c.items))
	for k, e := range c.items {
		if !e.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// DeleteFunc removes every live key matching fn, one key at a time, and
// returns how many were removed.
func (c *TTLCache[K, V]) DeleteFunc(fn func(K) bool) int {
	removed := 0
	for _, k := range c.Keys() {
		if fn(k) && c.Delete(k) {
			removed++
		}
	}
	return removed
}

// Len counts live entries. Expired entries the sweep has not reached yet are
// not included.
func (c *TTLCache[K, V]) Len() int {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// stored counts entries still in the map, expired or not.
func (c *TTLCache[K, V]) stored() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *TTLCache[K, V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Keys:   c.Len(),
	}
}

// Sweep purges expired entries and returns how many were dropped.
func (c *TTLCache[K, V]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if e.expired(now) {
			delete(c.items, k)
			n++
		}
	}
	return n
}

func (c *TTLCache[K, V]) sweepLoop(every time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("cache sweep", "cache", c.name, "purged", n)
			}
		}
	}
}

// Close stops the sweep goroutine and waits for it to exit. Safe to call more
// than once.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}
