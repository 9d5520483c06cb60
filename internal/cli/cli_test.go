package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/game"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected error without a saved session")
	}
	want := Session{AccessToken: "tok", UserID: "u1", Username: "ash", ExpiresAt: time.Now().Add(time.Hour).UTC()}
	if err := SaveSession(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadSession()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != "tok" || got.Username != "ash" {
		t.Fatalf("unexpected session %+v", got)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	if err := SaveSession(Session{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadSession(); err == nil {
		t.Fatalf("expected expired session to be rejected")
	}
}

func TestAddCandySendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/candy" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" || r.Header.Get("Idempotency-Key") != "k1" {
			t.Errorf("missing headers: %v", r.Header)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1","username":"ash","rare_candy":"` + body["amount"] + `"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	p, err := c.AddCandy(context.Background(), "tok", candy.MustParse("123456789012345678901"), "k1")
	if err != nil {
		t.Fatalf("add candy: %v", err)
	}
	if p.RareCandy.String() != "123456789012345678901" {
		t.Fatalf("amount lost precision: %s", p.RareCandy)
	}
}

func TestAPIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"duplicate idempotency key"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).AddCandy(context.Background(), "tok", candy.FromInt(1), "k1")
	if !IsStatus(err, http.StatusConflict) {
		t.Fatalf("expected 409 api error, got %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Fatalf("status match too loose")
	}
	apiErr := err.(*APIError)
	if apiErr.Message != "duplicate idempotency key" {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
}

func TestPokedexSendsFilters(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/pokedex" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pokemon":[{"id":4,"name":"charmander","types":["fire"],"bst":309,"price":"1234","is_owned":true}],"total":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	page, err := c.Pokedex(context.Background(), "tok", game.PokedexQuery{
		Search:     "char",
		Generation: "kanto",
		Types:      []string{"fire", "dragon"},
		SortBy:     "bst",
		SortOrder:  "desc",
		Limit:      10,
		OwnedOnly:  true,
	})
	if err != nil {
		t.Fatalf("pokedex: %v", err)
	}
	want := "generation=kanto&limit=10&order=desc&owned=true&search=char&sort=bst&types=fire%2Cdragon"
	if gotQuery != want {
		t.Fatalf("query %q want %q", gotQuery, want)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header %q", gotAuth)
	}
	if page.Total != 1 || !page.Pokemon[0].Owned || page.Pokemon[0].Price.String() != "1234" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestPokedexValuesOmitsDefaults(t *testing.T) {
	if v := pokedexValues(game.PokedexQuery{Search: "  ", Offset: -1}); len(v) != 0 {
		t.Fatalf("expected no params, got %v", v.Encode())
	}
}
