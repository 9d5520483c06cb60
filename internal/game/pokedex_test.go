package game

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/pricing"
)

const testViewerID = "6a1f4c2e-0000-4000-8000-000000000001"

func TestBuildPokedexQueryDefaults(t *testing.T) {
	stmt, err := buildPokedexQuery(PokedexQuery{}, "")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if stmt.count != "SELECT COUNT(1) FROM pokemon_catalog c" || len(stmt.countArgs) != 0 {
		t.Fatalf("count: %q %v", stmt.count, stmt.countArgs)
	}
	if !strings.Contains(stmt.page, ", false FROM pokemon_catalog c ORDER BY c.id ASC LIMIT $1 OFFSET $2") {
		t.Fatalf("page: %q", stmt.page)
	}
	if fmt.Sprint(stmt.pageArgs) != fmt.Sprint([]any{DefaultPokedexLimit, 0}) {
		t.Fatalf("page args: %v", stmt.pageArgs)
	}
}

func TestBuildPokedexQueryFilters(t *testing.T) {
	stmt, err := buildPokedexQuery(PokedexQuery{
		Search:     "Mr_",
		Generation: "Johto",
		Types:      []string{" Fire", "", "WATER"},
		SortBy:     "price",
		SortOrder:  "desc",
		Limit:      500,
		Offset:     -3,
		OwnedOnly:  true,
	}, testViewerID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantWhere := " WHERE c.id BETWEEN $1 AND $2 AND c.types && $3::text[] AND c.name ILIKE $4 AND " + ownedExpr("$5")
	if stmt.count != "SELECT COUNT(1) FROM pokemon_catalog c"+wantWhere {
		t.Fatalf("count: %q", stmt.count)
	}
	wantArgs := fmt.Sprint([]any{152, 251, []string{"fire", "water"}, `%Mr\_%`, testViewerID})
	if fmt.Sprint(stmt.countArgs) != wantArgs {
		t.Fatalf("count args: %v", stmt.countArgs)
	}
	// The page reuses the owned placeholder instead of binding the viewer twice.
	if strings.Count(stmt.page, "$5::uuid") != 2 {
		t.Fatalf("page should reference the viewer in filter and column: %q", stmt.page)
	}
	if !strings.HasSuffix(stmt.page, "ORDER BY c.price::numeric DESC, c.id LIMIT $6 OFFSET $7") {
		t.Fatalf("page: %q", stmt.page)
	}
	if len(stmt.pageArgs) != 7 || stmt.pageArgs[5] != MaxPokedexLimit || stmt.pageArgs[6] != 0 {
		t.Fatalf("page args: %v", stmt.pageArgs)
	}
}

func TestBuildPokedexQueryViewerColumnOnly(t *testing.T) {
	stmt, err := buildPokedexQuery(PokedexQuery{SortBy: "type"}, testViewerID)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(stmt.countArgs) != 0 {
		t.Fatalf("count must not bind an unused viewer: %v", stmt.countArgs)
	}
	if !strings.Contains(stmt.page, ownedExpr("$1")) || !strings.Contains(stmt.page, "ORDER BY c.types[1] ASC, c.id") {
		t.Fatalf("page: %q", stmt.page)
	}
}

func TestBuildPokedexQueryRejectsBadInput(t *testing.T) {
	tests := []PokedexQuery{
		{Generation: "orre"},
		{SortBy: "weight"},
		{SortOrder: "sideways"},
		{OwnedOnly: true},
	}
	for _, q := range tests {
		if _, err := buildPokedexQuery(q, ""); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("%+v: expected ErrInvalidFilter, got %v", q, err)
		}
	}
}

func TestNormalizeIDs(t *testing.T) {
	got, err := normalizeIDs([]int{25, 1, 25, 4, 1})
	if err != nil || fmt.Sprint(got) != "[25 1 4]" {
		t.Fatalf("got %v err %v", got, err)
	}
	if _, err := normalizeIDs([]int{3, 0}); !errors.Is(err, pricing.ErrInvalidPokemonID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := normalizeIDs(make([]int, MaxPokemonBatch+1)); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected batch limit, got %v", err)
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"pika":    "pika",
		"100%":    `100\%`,
		"mr_mime": `mr\_mime`,
		`a\b`:     `a\\b`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{in: 0, want: DefaultBSTLimit},
		{in: -1, want: DefaultBSTLimit},
		{in: 50, want: 50},
		{in: 1000, want: MaxBSTLimit},
	}
	for _, tc := range tests {
		if got := clampLimit(tc.in, DefaultBSTLimit, MaxBSTLimit); got != tc.want {
			t.Fatalf("clampLimit(%d) = %d want %d", tc.in, got, tc.want)
		}
	}
}

func TestEntryFromQuote(t *testing.T) {
	q := pricing.Quote{ID: 4, Name: "charmander", Generation: "kanto", BST: 309, Price: pricing.PriceForBST(309)}
	e := entryFromQuote(q, &pokeapi.Pokemon{ID: 4, Types: []string{"fire"}, Sprite: "s.png"})
	if e.Name != "charmander" || e.Types[0] != "fire" || e.Sprite != "s.png" || e.Price.String() != q.Price.String() {
		t.Fatalf("got %+v", e)
	}
	e = entryFromQuote(pricing.Quote{ID: 4, Estimated: true}, nil)
	if e.Types == nil || !e.Estimated {
		t.Fatalf("estimated entry should still carry an empty type list: %+v", e)
	}
}
