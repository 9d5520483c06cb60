package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pokeclicker/internal/auth"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/game"
	"pokeclicker/internal/pricing"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type AuthResult struct {
	auth.Session
	User game.Profile `json:"user"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Signup(ctx context.Context, username, password string) (AuthResult, error) {
	var out AuthResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/signup", "", map[string]any{
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Login(ctx context.Context, username, password string) (AuthResult, error) {
	var out AuthResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) DeleteMe(ctx context.Context, accessToken string) error {
	return c.jsonRequest(ctx, http.MethodDelete, "/v1/me", accessToken, nil, nil, "")
}

func (c *Client) AddCandy(ctx context.Context, accessToken string, amount candy.Amount, idem string) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/candy", accessToken, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Upgrades(ctx context.Context, accessToken string) ([]game.UpgradeView, error) {
	var out struct {
		Upgrades []game.UpgradeView `json:"upgrades"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/upgrades", accessToken, nil, &out, "")
	return out.Upgrades, err
}

func (c *Client) UpgradeStat(ctx context.Context, accessToken, key string) (game.UpgradeResult, error) {
	var out game.UpgradeResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/upgrades/"+url.PathEscape(key), accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Price(ctx context.Context, pokemonID int) (pricing.Quote, error) {
	var out pricing.Quote
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/pokemon/%d/price", pokemonID), "", nil, &out, "")
	return out, err
}

func (c *Client) Pokemon(ctx context.Context, accessToken string, pokemonID int) (game.PokemonDetail, error) {
	var out game.PokemonDetail
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/pokemon/%d", pokemonID), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Pokedex(ctx context.Context, accessToken string, q game.PokedexQuery) (game.PokedexPage, error) {
	path := "/v1/pokedex"
	if v := pokedexValues(q); len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out game.PokedexPage
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out, err
}

func (c *Client) PokemonByBST(ctx context.Context, accessToken string, minBST, maxBST, limit int) ([]game.CatalogEntry, error) {
	q := url.Values{}
	q.Set("min", fmt.Sprint(minBST))
	q.Set("max", fmt.Sprint(maxBST))
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var out struct {
		Pokemon []game.CatalogEntry `json:"pokemon"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/pokedex/bst?"+q.Encode(), accessToken, nil, &out, "")
	return out.Pokemon, err
}

func pokedexValues(q game.PokedexQuery) url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val = strings.TrimSpace(val); val != "" {
			v.Set(key, val)
		}
	}
	set("search", q.Search)
	set("generation", q.Generation)
	set("types", strings.Join(q.Types, ","))
	set("sort", q.SortBy)
	set("order", q.SortOrder)
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprint(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", fmt.Sprint(q.Offset))
	}
	if q.OwnedOnly {
		v.Set("owned", "true")
	}
	return v
}

func (c *Client) Purchase(ctx context.Context, accessToken string, pokemonID int) (game.PurchaseResult, error) {
	var out game.PurchaseResult
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/pokemon/%d/purchase", pokemonID), accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) Catch(ctx context.Context, accessToken string, pokemonID int) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/pokemon/%d/catch", pokemonID), accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) PokemonUpgrade(ctx context.Context, accessToken string, pokemonID int) (game.PokemonUpgradeView, error) {
	var out game.PokemonUpgradeView
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/pokemon/%d/upgrade", pokemonID), accessToken, nil, &out, "")
	return out, err
}

func (c *Client) UpgradePokemon(ctx context.Context, accessToken string, pokemonID int) (game.PokemonUpgradeView, error) {
	var out game.PokemonUpgradeView
	err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/v1/pokemon/%d/upgrade", pokemonID), accessToken, map[string]any{}, &out, "")
	return out, err
}

func (c *Client) SetFavorite(ctx context.Context, accessToken string, pokemonID *int) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/me/favorite", accessToken, map[string]any{
		"pokemon_id": pokemonID,
	}, &out, "")
	return out, err
}

func (c *Client) SetSelected(ctx context.Context, accessToken string, pokemonID *int) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/me/selected", accessToken, map[string]any{
		"pokemon_id": pokemonID,
	}, &out, "")
	return out, err
}

func (c *Client) SetShowInRanks(ctx context.Context, accessToken string, show bool) (game.Profile, error) {
	var out game.Profile
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/me/ranks", accessToken, map[string]any{
		"show_in_ranks": show,
	}, &out, "")
	return out, err
}

func (c *Client) Ranks(ctx context.Context, accessToken string, limit, offset int) (game.Ranks, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		q.Set("offset", fmt.Sprint(offset))
	}
	path := "/v1/ranks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out game.Ranks
	err := c.jsonRequest(ctx, http.MethodGet, path, accessToken, nil, &out, "")
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
