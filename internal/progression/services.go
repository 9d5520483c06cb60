// Package progression owns the caches and pricing engine shared by the
// transport layer. One Services value is built at startup and passed down;
// there are no package level cache instances.
package progression

import (
	"context"
	"log/slog"
	"time"

	"pokeclicker/internal/cache"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/pricing"
	"pokeclicker/internal/upgrades"
)

type Options struct {
	StatTTL   time.Duration
	StatSweep time.Duration
	UserTTL   time.Duration
	UserSweep time.Duration
	// AbsentTTL bounds how long an id without complete upstream stats is
	// priced from the estimate before the source is asked again.
	AbsentTTL time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

type Services struct {
	StatCache   *cache.TTLCache[int, pokeapi.Pokemon]
	AbsentCache *cache.TTLCache[int, string]
	UserCache   *cache.UserCache
	Pricing     *pricing.Engine
}

type CacheStats struct {
	Stats  cache.Stats `json:"stats"`
	Absent cache.Stats `json:"absent"`
	User   cache.Stats `json:"user"`
}

func New(source pricing.StatSource, opts Options) *Services {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StatTTL <= 0 {
		opts.StatTTL = cache.DefaultStatTTL
	}
	if opts.StatSweep <= 0 {
		opts.StatSweep = cache.DefaultStatSweep
	}
	if opts.UserTTL <= 0 {
		opts.UserTTL = cache.DefaultUserTTL
	}
	if opts.UserSweep <= 0 {
		opts.UserSweep = cache.DefaultUserSweep
	}
	if opts.AbsentTTL <= 0 {
		opts.AbsentTTL = cache.DefaultAbsentTTL
	}
	stats := cache.New[int, pokeapi.Pokemon](cache.Options{
		Name:          "stats",
		TTL:           opts.StatTTL,
		SweepInterval: opts.StatSweep,
		Now:           opts.Now,
		Logger:        opts.Logger,
	})
	absent := cache.New[int, string](cache.Options{
		Name:          "absent",
		TTL:           opts.AbsentTTL,
		SweepInterval: min(opts.AbsentTTL, cache.DefaultAbsentSweep),
		Now:           opts.Now,
		Logger:        opts.Logger,
	})
	users := cache.NewUserCache(cache.Options{
		Name:          "user",
		TTL:           opts.UserTTL,
		SweepInterval: opts.UserSweep,
		Now:           opts.Now,
		Logger:        opts.Logger,
	})
	return &Services{
		StatCache:   stats,
		AbsentCache: absent,
		UserCache:   users,
		Pricing:     pricing.NewEngine(source, stats, absent, opts.Logger),
	}
}

// UpgradeCost is the transport-facing cost lookup.
func (s *Services) UpgradeCost(key string, currentLevel int) (candy.Amount, error) {
	return upgrades.Cost(key, currentLevel)
}

// PokemonPrice never fails on lookup problems; see pricing.Engine.Quote.
func (s *Services) PokemonPrice(ctx context.Context, id int) (candy.Amount, error) {
	return s.Pricing.Price(ctx, id)
}

func (s *Services) CacheStats() CacheStats {
	return CacheStats{
		Stats:  s.StatCache.Stats(),
		Absent: s.AbsentCache.Stats(),
		User:   s.UserCache.Stats(),
	}
}

func (s *Services) Close() {
	s.StatCache.Close()
	s.AbsentCache.Close()
	s.UserCache.Close()
}
