package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pokeclicker/internal/cache"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/upgrades"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	mu      sync.Mutex
	records map[int]*pokeapi.Pokemon
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (f *fakeSource) FetchPokemon(_ context.Context, id int) (*pokeapi.Pokemon, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.records[id], nil
}

func fullStats(hp, atk, def, spa, spd, spe int) map[string]int {
	return map[string]int{
		"hp": hp, "attack": atk, "defense": def,
		"special-attack": spa, "special-defense": spd, "speed": spe,
	}
}

func newStatCache(t *testing.T) *cache.TTLCache[int, pokeapi.Pokemon] {
	t.Helper()
	c := cache.New[int, pokeapi.Pokemon](cache.Options{TTL: cache.DefaultStatTTL})
	t.Cleanup(c.Close)
	return c
}

func TestPriceCurveContinuousAtKnee(t *testing.T) {
	lower, err := candy.FromFloat(lowerCurve(600))
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	upper, err := candy.FromFloat(upperCurve(600))
	if err != nil {
		t.Fatalf("upper: %v", err)
	}
	diff, err := lower.Floor().Sub(upper.Floor())
	if err != nil {
		diff, _ = upper.Floor().Sub(lower.Floor())
	}
	if diff.Cmp(candy.FromInt(1)) > 0 {
		t.Fatalf("branches disagree at 600: %s vs %s", lower.Floor(), upper.Floor())
	}
	if got := PriceForBST(600).String(); got != "38122922312688" {
		t.Fatalf("price at 600: got %s", got)
	}
}

func TestPriceCurveKnownPoints(t *testing.T) {
	tests := []struct {
		bst  int
		want string
	}{
		{bst: 200, want: "100"},
		{bst: 215, want: "271"},
		{bst: 0, want: "0"},
		{bst: -50, want: "0"},
	}
	for _, tc := range tests {
		if got := PriceForBST(tc.bst).String(); got != tc.want {
			t.Fatalf("bst %d: got %s want %s", tc.bst, got, tc.want)
		}
	}
	// Legendary prices leave the int64 range.
	if got := PriceForBST(700).String(); len(got) != 23 {
		t.Fatalf("bst 700: expected a 23 digit price, got %s", got)
	}
}

func TestPriceCurveNonDecreasing(t *testing.T) {
	prev := PriceForBST(0)
	for bst := 1; bst <= 5000; bst++ {
		cur := PriceForBST(bst)
		if cur.LessThan(prev) {
			t.Fatalf("price dropped at bst %d: %s < %s", bst, cur, prev)
		}
		prev = cur
	}
}

func TestEstimateBST(t *testing.T) {
	tests := []struct {
		id   int
		want int
	}{
		{id: 1, want: 420},
		{id: 151, want: 620},
		{id: 152, want: 430},
		{id: 150, want: 620},
		{id: 700, want: 435},
		{id: 905, want: 645},
		{id: 906, want: 450},
		{id: 100000, want: 450},
	}
	for _, tc := range tests {
		if got := EstimateBST(tc.id); got != tc.want {
			t.Fatalf("id %d: got %d want %d", tc.id, got, tc.want)
		}
		if EstimateBST(tc.id) != EstimateBST(tc.id) {
			t.Fatalf("id %d: estimate not deterministic", tc.id)
		}
	}
}

func TestEstimateLegendariesAtLeast600(t *testing.T) {
	for id := range legendaries {
		if got := EstimateBST(id); got < 600 {
			t.Fatalf("legendary %d estimated at %d", id, got)
		}
	}
}

func TestGeneration(t *testing.T) {
	if Generation(1) != "kanto" || Generation(1025) != "paldea" || Generation(2000) != "" {
		t.Fatalf("generation lookup wrong")
	}
	start, end, ok := GenerationRange("johto")
	if !ok || start != 152 || end != 251 {
		t.Fatalf("johto range: %d-%d ok=%v", start, end, ok)
	}
}

func TestQuoteFallsBackWhenLookupFails(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	e := NewEngine(src, newStatCache(t), nil, quietLogger())

	q, err := e.Quote(context.Background(), 1)
	if err != nil {
		t.Fatalf("pricing must not fail on lookup errors: %v", err)
	}
	if !q.Estimated || q.BST != 420 {
		t.Fatalf("expected estimate 420, got %+v", q)
	}
	if q.Price.String() != PriceForBST(420).String() {
		t.Fatalf("price mismatch: %s", q.Price)
	}
}

func TestQuoteUsesRemoteStatsAndCachesRecord(t *testing.T) {
	src := &fakeSource{records: map[int]*pokeapi.Pokemon{
		1: {ID: 1, Name: "bulbasaur", Stats: fullStats(45, 49, 49, 65, 65, 45)},
	}}
	statCache := newStatCache(t)
	e := NewEngine(src, statCache, nil, quietLogger())

	for i := 0; i < 3; i++ {
		q, err := e.Quote(context.Background(), 1)
		if err != nil {
			t.Fatalf("quote: %v", err)
		}
		if q.Estimated || q.BST != 318 || q.Name != "bulbasaur" || q.Generation != "kanto" {
			t.Fatalf("unexpected quote %+v", q)
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected one remote call, got %d", n)
	}
	if cached, ok := statCache.Get(1); !ok || cached.Stats["hp"] != 45 {
		t.Fatalf("raw record should be cached, got %+v ok=%v", cached, ok)
	}
}

func TestQuotePartialRecordIsEstimatedAndNotCached(t *testing.T) {
	src := &fakeSource{records: map[int]*pokeapi.Pokemon{
		150: {ID: 150, Name: "mewtwo", Stats: map[string]int{"hp": 106}},
	}}
	statCache := newStatCache(t)
	e := NewEngine(src, statCache, nil, quietLogger())

	q, err := e.Quote(context.Background(), 150)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Estimated || q.BST != 620 || q.Name != "mewtwo" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if _, ok := statCache.Get(150); ok {
		t.Fatalf("partial record must not be cached")
	}
}

func TestQuoteMissingRecordIsEstimated(t *testing.T) {
	e := NewEngine(&fakeSource{}, nil, nil, quietLogger())
	q, err := e.Quote(context.Background(), 2000)
	if err != nil || !q.Estimated || q.BST != 450 {
		t.Fatalf("unexpected quote %+v err=%v", q, err)
	}
}

func TestQuoteRejectsInvalidID(t *testing.T) {
	e := NewEngine(&fakeSource{}, nil, nil, quietLogger())
	for _, id := range []int{0, -1} {
		if _, err := e.Quote(context.Background(), id); !errors.Is(err, ErrInvalidPokemonID) {
			t.Fatalf("id %d: expected invalid id, got %v", id, err)
		}
	}
}

func TestConcurrentMissesShareOneLookup(t *testing.T) {
	src := &fakeSource{
		delay: 50 * time.Millisecond,
		records: map[int]*pokeapi.Pokemon{
			25: {ID: 25, Name: "pikachu", Stats: fullStats(35, 55, 40, 50, 50, 90)},
		},
	}
	e := NewEngine(src, newStatCache(t), nil, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Quote(context.Background(), 25); err != nil {
				t.Errorf("quote: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n > 2 {
		t.Fatalf("expected concurrent misses to collapse, got %d calls", n)
	}
}

type gatedSource struct {
	record  *pokeapi.Pokemon
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) FetchPokemon(ctx context.Context, _ int) (*pokeapi.Pokemon, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.release:
		return g.record, nil
	}
}

func TestCancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	src := &gatedSource{
		record:  &pokeapi.Pokemon{ID: 150, Name: "mewtwo", Stats: fullStats(106, 110, 90, 154, 90, 130)},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEngine(src, newStatCache(t), nil, quietLogger())

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan Quote, 2)
	go func() {
		q, _ := e.Quote(leaderCtx, 150)
		results <- q
	}()
	<-src.started
	go func() {
		q, _ := e.Quote(context.Background(), 150)
		results <- q
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(src.release)

	for range 2 {
		select {
		case q := <-results:
			if q.Estimated || q.BST != 680 {
				t.Fatalf("caller got an estimate after another caller cancelled: %+v", q)
			}
			if q.Price.String() != PriceForBST(680).String() {
				t.Fatalf("price %s, want %s", q.Price, PriceForBST(680))
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("quote did not return")
		}
	}
}

func TestAbsentRecordsSkipTheSourceUntilExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	absent := cache.New[int, string](cache.Options{TTL: time.Minute, Now: func() time.Time { return now }})
	t.Cleanup(absent.Close)
	src := &fakeSource{records: map[int]*pokeapi.Pokemon{
		150: {ID: 150, Name: "mewtwo", Stats: map[string]int{"hp": 106}},
	}}
	e := NewEngine(src, newStatCache(t), absent, quietLogger())

	for range 3 {
		q, err := e.Quote(context.Background(), 5000)
		if err != nil || !q.Estimated {
			t.Fatalf("missing id: %+v err=%v", q, err)
		}
		q, err = e.Quote(context.Background(), 150)
		if err != nil || !q.Estimated || q.Name != "mewtwo" || q.BST != 620 {
			t.Fatalf("partial id: %+v err=%v", q, err)
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("expected one remote call per id, got %d", n)
	}

	now = now.Add(time.Minute)
	if _, err := e.Quote(context.Background(), 5000); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if n := src.calls.Load(); n != 3 {
		t.Fatalf("expired absent entry should be retried, got %d calls", n)
	}
}

func TestAbsentCacheIgnoresFailures(t *testing.T) {
	absent := cache.New[int, string](cache.Options{TTL: time.Minute})
	t.Cleanup(absent.Close)
	src := &fakeSource{err: errors.New("timeout")}
	e := NewEngine(src, nil, absent, quietLogger())

	for range 2 {
		if _, err := e.Quote(context.Background(), 7); err != nil {
			t.Fatalf("quote: %v", err)
		}
	}
	if n := src.calls.Load(); n != 2 {
		t.Fatalf("failed lookups must be retried, got %d calls", n)
	}
	if _, ok := absent.Get(7); ok {
		t.Fatalf("a failed lookup was remembered as absent")
	}
}

func TestDescribeReturnsRecordOnlyWhenExact(t *testing.T) {
	src := &fakeSource{records: map[int]*pokeapi.Pokemon{
		1: {ID: 1, Name: "bulbasaur", Types: []string{"grass", "poison"}, Stats: fullStats(45, 49, 49, 65, 65, 45)},
	}}
	e := NewEngine(src, nil, nil, quietLogger())

	q, p, err := e.Describe(context.Background(), 1)
	if err != nil || p == nil || q.Estimated || p.Types[0] != "grass" {
		t.Fatalf("got %+v %+v err=%v", q, p, err)
	}
	q, p, err = e.Describe(context.Background(), 2)
	if err != nil || p != nil || !q.Estimated {
		t.Fatalf("estimated quote should carry no record: %+v %+v err=%v", q, p, err)
	}
}

func TestPokemonUpgradeCost(t *testing.T) {
	tests := []struct {
		bst, level int
		want       string
	}{
		{bst: 318, level: 1, want: "159"},
		{bst: 318, level: 3, want: "993"},
		{bst: 30, level: 1, want: "25"},
		{bst: 30, level: 2, want: "62"},
	}
	for _, tc := range tests {
		got, err := PokemonUpgradeCost(tc.bst, tc.level)
		if err != nil {
			t.Fatalf("bst %d level %d: %v", tc.bst, tc.level, err)
		}
		if got.String() != tc.want {
			t.Fatalf("bst %d level %d: got %s want %s", tc.bst, tc.level, got, tc.want)
		}
	}
	if _, err := PokemonUpgradeCost(318, 0); !errors.Is(err, upgrades.ErrInvalidLevel) {
		t.Fatalf("expected invalid level, got %v", err)
	}
}
