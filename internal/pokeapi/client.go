// Package pokeapi is a small client for the public PokeAPI, limited to the
// pokemon resource the game prices from.
package pokeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://pokeapi.co/api/v2"

// StatNames are the six base stats, in the names PokeAPI uses.
var StatNames = []string{"hp", "attack", "defense", "special-attack", "special-defense", "speed"}

var ErrBadStatus = errors.New("pokeapi: unexpected status")

type Pokemon struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Types     []string       `json:"types"`
	Sprite    string         `json:"sprite"`
	Height    int            `json:"height"`
	Weight    int            `json:"weight"`
	Abilities []string       `json:"abilities"`
	Stats     map[string]int `json:"stats"`
}

// Complete reports whether all six base stats are present.
func (p *Pokemon) Complete() bool {
	if p == nil {
		return false
	}
	for _, name := range StatNames {
		if _, ok := p.Stats[name]; !ok {
			return false
		}
	}
	return true
}

// BST sums the six base stats. Only meaningful when Complete is true.
func (p *Pokemon) BST() int {
	total := 0
	for _, name := range StatNames {
		total += p.Stats[name]
	}
	return total
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// RPS caps outbound requests per second. Zero disables the limit.
	RPS float64
}

func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: limiter,
	}
}

type apiResource struct {
	Name string `json:"name"`
}

type apiPokemon struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Types []struct {
		Slot int         `json:"slot"`
		Type apiResource `json:"type"`
	} `json:"types"`
	Sprites struct {
		FrontDefault *string `json:"front_default"`
	} `json:"sprites"`
	Stats []struct {
		BaseStat int         `json:"base_stat"`
		Stat     apiResource `json:"stat"`
	} `json:"stats"`
	Height    int `json:"height"`
	Weight    int `json:"weight"`
	Abilities []struct {
		Ability  apiResource `json:"ability"`
		IsHidden bool        `json:"is_hidden"`
	} `json:"abilities"`
}

// FetchPokemon loads one pokemon by national dex id. A 404 yields (nil, nil);
// any other failure is returned to the caller.
func (c *Client) FetchPokemon(ctx context.Context, id int) (*Pokemon, error) {
	ctx, span := otel.Tracer("pokeclicker/pokeapi").Start(ctx, "pokeapi.FetchPokemon")
	defer span.End()
	span.SetAttributes(attribute.Int("pokemon.id", id))

	p, err := c.fetchPokemon(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return p, err
}

func (c *Client) fetchPokemon(ctx context.Context, id int) (*Pokemon, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pokeapi rate limit: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pokemon/"+strconv.Itoa(id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pokeapi request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var raw apiPokemon
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode pokemon: %w", err)
	}
	return raw.toPokemon(), nil
}

func (a apiPokemon) toPokemon() *Pokemon {
	p := &Pokemon{
		ID:     a.ID,
		Name:   a.Name,
		Height: a.Height,
		Weight: a.Weight,
		Stats:  make(map[string]int, len(a.Stats)),
	}
	for _, t := range a.Types {
		p.Types = append(p.Types, t.Type.Name)
	}
	if a.Sprites.FrontDefault != nil {
		p.Sprite = *a.Sprites.FrontDefault
	}
	for _, ab := range a.Abilities {
		p.Abilities = append(p.Abilities, ab.Ability.Name)
	}
	for _, s := range a.Stats {
		p.Stats[s.Stat.Name] = s.BaseStat
	}
	return p
}
