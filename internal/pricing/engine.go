// Package pricing prices pokemon from their base stat total, fetched through
// a long lived cache with a deterministic estimate when the lookup fails.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/pokeapi"

	"golang.org/x/sync/singleflight"
)

var ErrInvalidPokemonID = errors.New("pokemon id must be >= 1")

// StatSource is the remote lookup. A nil record with a nil error means the
// pokemon does not exist upstream.
type StatSource interface {
	FetchPokemon(ctx context.Context, id int) (*pokeapi.Pokemon, error)
}

type StatCache interface {
	Get(id int) (pokeapi.Pokemon, bool)
	Set(id int, p pokeapi.Pokemon)
}

// AbsentCache remembers ids the source answered without a complete record,
// keyed to the name it returned ("" when there was none). Entries should be
// short lived so late upstream fixes are picked up.
type AbsentCache interface {
	Get(id int) (string, bool)
	Set(id int, name string)
}

type Quote struct {
	ID         int          `json:"id"`
	Name       string       `json:"name,omitempty"`
	Generation string       `json:"generation,omitempty"`
	BST        int          `json:"bst"`
	Price      candy.Amount `json:"price"`
	Estimated  bool         `json:"estimated"`
}

type Engine struct {
	source StatSource
	cache  StatCache
	absent AbsentCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewEngine wires the source behind the caches. Either cache may be nil.
func NewEngine(source StatSource, cache StatCache, absent AbsentCache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, cache: cache, absent: absent, logger: logger}
}

// Quote resolves the base stat total for id and prices it. Lookup failures
// never surface; only an invalid id is an error.
func (e *Engine) Quote(ctx context.Context, id int) (Quote, error) {
	q, _, err := e.Describe(ctx, id)
	return q, err
}

// Describe is Quote plus the record it was priced from. The record is nil
// whenever the quote is estimated.
func (e *Engine) Describe(ctx context.Context, id int) (Quote, *pokeapi.Pokemon, error) {
	if id < 1 {
		return Quote{}, nil, fmt.Errorf("%w: got %d", ErrInvalidPokemonID, id)
	}
	q := Quote{ID: id, Generation: Generation(id)}
	p := e.lookup(ctx, id)
	if p != nil && p.Complete() {
		q.Name = p.Name
		q.BST = p.BST()
	} else {
		if p != nil {
			q.Name = p.Name
		}
		q.BST = EstimateBST(id)
		q.Estimated = true
		p = nil
	}
	q.Price = PriceForBST(q.BST)
	return q, p, nil
}

func (e *Engine) Price(ctx context.Context, id int) (candy.Amount, error) {
	q, err := e.Quote(ctx, id)
	if err != nil {
		return candy.Zero, err
	}
	return q.Price, nil
}

// BST returns the stat total and whether it was estimated.
func (e *Engine) BST(ctx context.Context, id int) (int, bool, error) {
	q, err := e.Quote(ctx, id)
	if err != nil {
		return 0, false, err
	}
	return q.BST, q.Estimated, nil
}

// lookup consults the caches, then the remote source. Concurrent misses for
// the same id share one request, and the caches are written only after the
// request returns. Complete records go to the stat cache; missing and partial
// ones to the absent cache.
func (e *Engine) lookup(ctx context.Context, id int) *pokeapi.Pokemon {
	if e.cache != nil {
		if p, ok := e.cache.Get(id); ok {
			return &p
		}
	}
	if e.absent != nil {
		if name, ok := e.absent.Get(id); ok {
			if name == "" {
				return nil
			}
			return &pokeapi.Pokemon{ID: id, Name: name}
		}
	}
	if e.source == nil {
		return nil
	}
	// The shared request ignores the first caller's cancellation so every
	// waiter gets the real answer. The source's own timeout bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := e.group.Do(strconv.Itoa(id), func() (any, error) {
		p, err := e.source.FetchPokemon(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case p.Complete():
			if e.cache != nil {
				e.cache.Set(id, *p)
			}
		case e.absent != nil:
			name := ""
			if p != nil {
				name = p.Name
			}
			e.absent.Set(id, name)
		}
		return p, nil
	})
	if err != nil {
		e.logger.Warn("pokemon stat lookup failed, using estimate", "pokemon_id", id, "err", err)
		return nil
	}
	p, _ := v.(*pokeapi.Pokemon)
	switch {
	case p == nil:
		e.logger.Warn("pokemon not found upstream, using estimate", "pokemon_id", id)
	case !p.Complete():
		e.logger.Warn("pokemon stats incomplete, using estimate", "pokemon_id", id, "name", p.Name)
	}
	return p
}
