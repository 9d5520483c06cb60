package cache

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultUserTTL   = 5 * time.Minute
	DefaultUserSweep = 60 * time.Second
)

// UserCache holds short lived per-user views. Keys have the form
// user:<id>:<kind>; keys outside that namespace (such as shared leaderboard
// pages) live alongside them and are never touched by Invalidate.
//
// Each user also has a generation that Invalidate bumps. A reader that loads
// from the database takes the generation first and stores through
// SetIfCurrent, so a load that raced a mutation is dropped instead of
// resurrecting the old view.
type UserCache struct {
	*TTLCache[string, any]

	genMu sync.Mutex
	gens  map[string]uint64
}

func NewUserCache(opts Options) *UserCache {
	if opts.Name == "" {
		opts.Name = "user"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultUserTTL
	}
	return &UserCache{TTLCache: New[string, any](opts), gens: make(map[string]uint64)}
}

func UserKey(userID, kind string) string {
	return "user:" + userID + ":" + kind
}

// Invalidate drops every entry namespaced to userID. The match includes the
// trailing separator so user "1" never clears entries of user "12". Each
// delete is atomic; readers may see some of the user's keys gone and others
// not yet, but never a half-removed entry.
func (c *UserCache) Invalidate(userID string) int {
	prefix := "user:" + userID + ":"
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.gens[userID]++
	return c.DeleteFunc(func(k string) bool {
		return strings.HasPrefix(k, prefix)
	})
}

// Generation is the user's invalidation count, taken before a load.
func (c *UserCache) Generation(userID string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.gens[userID]
}

// SetIfCurrent stores value only when no Invalidate for userID happened since
// gen was read. It reports whether the value was stored.
func (c *UserCache) SetIfCurrent(userID, key string, value any, gen uint64) bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.gens[userID] != gen {
		return false
	}
	c.Set(key, value)
	return true
}

// GetAs is Get with a type assertion for callers that know what they stored.
func GetAs[T any](c *UserCache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
