package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/config"
	"pokeclicker/internal/db"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/progression"
	"pokeclicker/internal/upgrades"

	"github.com/google/uuid"
)

type staticSource map[int]*pokeapi.Pokemon

func (s staticSource) FetchPokemon(_ context.Context, id int) (*pokeapi.Pokemon, error) {
	return s[id], nil
}

// newDBService connects to DATABASE_URL and skips the test when it is unset.
func newDBService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool, err := db.Connect(ctx, dsn, config.DBPoolConfig{MaxConns: 4, MinConns: 1}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}

	prog := progression.New(staticSource{
		25: {ID: 25, Name: "pikachu", Types: []string{"electric"}, Stats: map[string]int{
			"hp": 35, "attack": 55, "defense": 40, "special-attack": 50, "special-defense": 50, "speed": 90,
		}},
	}, progression.Options{Logger: logger})
	t.Cleanup(prog.Close)
	return NewService(pool, prog, logger), ctx
}

func createTestUser(t *testing.T, ctx context.Context, svc *Service) Profile {
	t.Helper()
	name := "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	p, err := svc.CreateUser(ctx, name, "$2a$10$notarealhashnotarealhashnotarealhashnotarealhash000")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.DeleteUser(context.Background(), p.ID); err != nil {
			t.Logf("cleanup %s: %v", p.ID, err)
		}
	})
	return p
}

func TestUpgradeStatDebitsAndLevelsUp(t *testing.T) {
	svc, ctx := newDBService(t)
	user := createTestUser(t, ctx, svc)
	key := upgrades.Keys()[0]

	if _, err := svc.UpgradeStat(ctx, user.ID, key); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds on empty balance, got %v", err)
	}
	p, err := svc.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Upgrades.Level(key) != 1 || !p.RareCandy.IsZero() {
		t.Fatalf("failed upgrade changed state: level %d balance %s", p.Upgrades.Level(key), p.RareCandy)
	}

	p, err = svc.AddCandy(ctx, AddCandyInput{UserID: user.ID, Amount: candy.FromInt(1_000_000), IdempotencyKey: "grant-1"})
	if err != nil {
		t.Fatalf("add candy: %v", err)
	}
	balance := p.RareCandy

	for want := 2; want <= 3; want++ {
		cost, err := upgrades.Cost(key, want-1)
		if err != nil {
			t.Fatalf("cost: %v", err)
		}
		res, err := svc.UpgradeStat(ctx, user.ID, key)
		if err != nil {
			t.Fatalf("upgrade to %d: %v", want, err)
		}
		expected, err := balance.Sub(cost)
		if err != nil {
			t.Fatalf("sub: %v", err)
		}
		if res.Level != want || res.Paid.Cmp(cost) != 0 || res.Profile.RareCandy.Cmp(expected) != 0 {
			t.Fatalf("level %d paid %s balance %s, want level %d paid %s balance %s",
				res.Level, res.Paid, res.Profile.RareCandy, want, cost, expected)
		}
		balance = expected
	}

	if _, err := svc.AddCandy(ctx, AddCandyInput{UserID: user.ID, Amount: candy.FromInt(5), IdempotencyKey: "grant-1"}); !errors.Is(err, ErrDuplicateIdempotency) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
	p, err = svc.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.RareCandy.Cmp(balance) != 0 {
		t.Fatalf("replayed grant changed balance: %s want %s", p.RareCandy, balance)
	}
}

func TestPurchasePokemonIsAtomic(t *testing.T) {
	svc, ctx := newDBService(t)
	user := createTestUser(t, ctx, svc)

	quote, err := svc.prog.Pricing.Quote(ctx, 25)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Estimated {
		t.Fatalf("expected an exact quote from the static source")
	}

	if _, err := svc.PurchasePokemon(ctx, user.ID, 25); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	p, err := svc.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Owns(25) {
		t.Fatalf("failed purchase granted the pokemon")
	}

	if _, err := svc.AddCandy(ctx, AddCandyInput{UserID: user.ID, Amount: quote.Price.Add(candy.FromInt(10)), IdempotencyKey: "grant-1"}); err != nil {
		t.Fatalf("add candy: %v", err)
	}
	res, err := svc.PurchasePokemon(ctx, user.ID, 25)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if !res.Profile.Owns(25) || res.Paid.Cmp(quote.Price) != 0 || res.Profile.RareCandy.Cmp(candy.FromInt(10)) != 0 {
		t.Fatalf("unexpected purchase result: paid %s balance %s owned %v", res.Paid, res.Profile.RareCandy, res.Profile.OwnedPokemonIDs)
	}

	if _, err := svc.PurchasePokemon(ctx, user.ID, 25); !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected already owned, got %v", err)
	}
	p, err = svc.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.RareCandy.Cmp(candy.FromInt(10)) != 0 {
		t.Fatalf("repeat purchase changed balance: %s", p.RareCandy)
	}

	ids, err := svc.OwnedPokemonIDsByBST(ctx, user.ID)
	if err != nil {
		t.Fatalf("owned by bst: %v", err)
	}
	if len(ids) != len(res.Profile.OwnedPokemonIDs) || !slices.Contains(ids, 25) || !slices.Contains(ids, StarterPokemonID) {
		t.Fatalf("owned by bst: %v, profile owns %v", ids, res.Profile.OwnedPokemonIDs)
	}
	detail, err := svc.PokemonByID(ctx, user.ID, 25)
	if err != nil {
		t.Fatalf("pokemon by id: %v", err)
	}
	if !detail.Owned || detail.Name != "pikachu" || detail.BST != 320 {
		t.Fatalf("unexpected detail: %+v", detail.CatalogEntry)
	}
}
