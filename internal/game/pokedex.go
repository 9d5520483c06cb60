package game

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"pokeclicker/internal/cache"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/pricing"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

const catalogColumns = `c.id, c.name, c.generation, c.types, c.sprite, c.bst, c.price, c.estimated`

var pokedexSortColumns = map[string]string{
	"id":    "c.id",
	"name":  "c.name",
	"type":  "c.types[1]",
	"bst":   "c.bst",
	"price": "c.price::numeric",
}

// PokemonByID describes one pokemon from the live stat lookup, falling back
// to the catalog row for names and types when the lookup is estimated.
func (s *Service) PokemonByID(ctx context.Context, viewerID string, id int) (PokemonDetail, error) {
	q, rec, err := s.prog.Pricing.Describe(ctx, id)
	if err != nil {
		return PokemonDetail{}, err
	}
	out := PokemonDetail{CatalogEntry: entryFromQuote(q, rec), Abilities: []string{}}
	if rec != nil {
		out.Height = rec.Height
		out.Weight = rec.Weight
		out.Stats = rec.Stats
		if rec.Abilities != nil {
			out.Abilities = rec.Abilities
		}
	} else {
		row, found, err := s.catalogRow(ctx, id)
		if err != nil {
			return out, err
		}
		switch {
		case found:
			if out.Name == "" {
				out.Name = row.Name
			}
			out.Types = row.Types
			out.Sprite = row.Sprite
		case q.Name == "" && q.Generation == "":
			return out, fmt.Errorf("%w: %d", ErrPokemonNotFound, id)
		}
	}
	if checkUserID(viewerID) == nil {
		if out.Owned, err = ownsPokemon(ctx, s.db, viewerID, id); err != nil {
			return out, err
		}
	}
	return out, nil
}

// PokemonByIDs returns entries in request order. Ids missing from the
// catalog are described live and dropped when no record can be found.
func (s *Service) PokemonByIDs(ctx context.Context, viewerID string, ids []int) ([]CatalogEntry, error) {
	ids, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]CatalogEntry, len(ids))
	rows, err := s.db.Query(ctx, `SELECT `+catalogColumns+` FROM pokemon_catalog c WHERE c.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	entries, err := scanCatalog(rows, false)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		byID[e.ID] = e
	}

	var missing []int
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	live := make([]*CatalogEntry, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range missing {
		g.Go(func() error {
			q, rec, err := s.prog.Pricing.Describe(gctx, id)
			if err != nil {
				return err
			}
			if rec != nil {
				e := entryFromQuote(q, rec)
				live[i] = &e
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, e := range live {
		if e != nil {
			byID[e.ID] = *e
		}
	}

	owned, err := s.ownedAmong(ctx, viewerID, ids)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogEntry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		e.Owned = owned[id]
		out = append(out, e)
	}
	return out, nil
}

// Pokedex pages through the catalog. OwnedOnly without a viewer is an empty
// page.
func (s *Service) Pokedex(ctx context.Context, viewerID string, q PokedexQuery) (PokedexPage, error) {
	out := PokedexPage{Pokemon: []CatalogEntry{}}
	if checkUserID(viewerID) != nil {
		viewerID = ""
	}
	if q.OwnedOnly && viewerID == "" {
		return out, nil
	}
	stmt, err := buildPokedexQuery(q, viewerID)
	if err != nil {
		return out, err
	}
	if err := s.db.QueryRow(ctx, stmt.count, stmt.countArgs...).Scan(&out.Total); err != nil {
		return out, err
	}
	rows, err := s.db.Query(ctx, stmt.page, stmt.pageArgs...)
	if err != nil {
		return out, err
	}
	out.Pokemon, err = scanCatalog(rows, true)
	return out, err
}

// PokemonByBSTRange lists catalog entries with minBST <= bst <= maxBST,
// weakest first.
func (s *Service) PokemonByBSTRange(ctx context.Context, viewerID string, minBST, maxBST, limit int) ([]CatalogEntry, error) {
	if minBST < 0 || maxBST < minBST {
		return nil, fmt.Errorf("%w: bst range %d-%d", ErrInvalidFilter, minBST, maxBST)
	}
	limit = clampLimit(limit, DefaultBSTLimit, MaxBSTLimit)
	var viewer any
	if checkUserID(viewerID) == nil {
		viewer = viewerID
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+catalogColumns+`, `+ownedExpr("$4")+`
		FROM pokemon_catalog c
		WHERE c.bst BETWEEN $1 AND $2
		ORDER BY c.bst, c.id
		LIMIT $3
	`, minBST, maxBST, limit, viewer)
	if err != nil {
		return nil, err
	}
	return scanCatalog(rows, true)
}

// OwnedPokemonIDsByBST lists the user's pokemon strongest first. Ids not yet
// in the catalog sort last. Cached under user:<id>:owned-by-bst.
func (s *Service) OwnedPokemonIDsByBST(ctx context.Context, userID string) ([]int, error) {
	if err := checkUserID(userID); err != nil {
		return nil, err
	}
	key := cache.UserKey(userID, "owned-by-bst")
	if ids, ok := cache.GetAs[[]int](s.prog.UserCache, key); ok {
		return ids, nil
	}
	gen := s.prog.UserCache.Generation(userID)
	rows, err := s.db.Query(ctx, `
		SELECT o.pokemon_id
		FROM owned_pokemon o
		LEFT JOIN pokemon_catalog c ON c.id = o.pokemon_id
		WHERE o.user_id = $1
		ORDER BY c.bst DESC NULLS LAST, o.pokemon_id
	`, userID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int{}
	}
	s.prog.UserCache.SetIfCurrent(userID, key, ids, gen)
	return ids, nil
}

func (s *Service) catalogRow(ctx context.Context, id int) (CatalogEntry, bool, error) {
	rows, err := s.db.Query(ctx, `SELECT `+catalogColumns+` FROM pokemon_catalog c WHERE c.id = $1`, id)
	if err != nil {
		return CatalogEntry{}, false, err
	}
	entries, err := scanCatalog(rows, false)
	if err != nil || len(entries) == 0 {
		return CatalogEntry{}, false, err
	}
	return entries[0], true, nil
}

func (s *Service) ownedAmong(ctx context.Context, viewerID string, ids []int) (map[int]bool, error) {
	out := map[int]bool{}
	if checkUserID(viewerID) != nil || len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT pokemon_id FROM owned_pokemon WHERE user_id = $1 AND pokemon_id = ANY($2)
	`, viewerID, ids)
	if err != nil {
		return nil, err
	}
	owned, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, err
	}
	for _, id := range owned {
		out[id] = true
	}
	return out, nil
}

func scanCatalog(rows pgx.Rows, withOwned bool) ([]CatalogEntry, error) {
	defer rows.Close()
	out := []CatalogEntry{}
	for rows.Next() {
		var e CatalogEntry
		var price string
		dest := []any{&e.ID, &e.Name, &e.Generation, &e.Types, &e.Sprite, &e.BST, &price, &e.Estimated}
		if withOwned {
			dest = append(dest, &e.Owned)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		var err error
		if e.Price, err = candy.Parse(price); err != nil {
			return nil, fmt.Errorf("catalog %d price: %w", e.ID, err)
		}
		if e.Types == nil {
			e.Types = []string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func entryFromQuote(q pricing.Quote, rec *pokeapi.Pokemon) CatalogEntry {
	e := CatalogEntry{
		ID:         q.ID,
		Name:       q.Name,
		Generation: q.Generation,
		Types:      []string{},
		BST:        q.BST,
		Price:      q.Price,
		Estimated:  q.Estimated,
	}
	if rec != nil {
		if rec.Types != nil {
			e.Types = rec.Types
		}
		e.Sprite = rec.Sprite
	}
	return e
}

// normalizeIDs drops duplicates, keeping first-seen order.
func normalizeIDs(ids []int) ([]int, error) {
	if len(ids) > MaxPokemonBatch {
		return nil, fmt.Errorf("%w: at most %d ids", ErrInvalidFilter, MaxPokemonBatch)
	}
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 1 {
			return nil, fmt.Errorf("%w: got %d", pricing.ErrInvalidPokemonID, id)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func ownedExpr(placeholder string) string {
	return `EXISTS (SELECT 1 FROM owned_pokemon o WHERE o.user_id = ` + placeholder + `::uuid AND o.pokemon_id = c.id)`
}

type pokedexStatement struct {
	count     string
	countArgs []any
	page      string
	pageArgs  []any
}

type sqlArgs []any

func (a *sqlArgs) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

// buildPokedexQuery turns a query into a count and a page statement sharing
// one WHERE clause. viewerID is "" or a valid user id.
func buildPokedexQuery(q PokedexQuery, viewerID string) (pokedexStatement, error) {
	var args sqlArgs
	var where []string
	viewerPH := ""

	if gen := strings.ToLower(strings.TrimSpace(q.Generation)); gen != "" {
		start, end, ok := pricing.GenerationRange(gen)
		if !ok {
			return pokedexStatement{}, fmt.Errorf("%w: unknown generation %q", ErrInvalidFilter, q.Generation)
		}
		where = append(where, "c.id BETWEEN "+args.add(start)+" AND "+args.add(end))
	}
	var types []string
	for _, t := range q.Types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}
	if len(types) > 0 {
		where = append(where, "c.types && "+args.add(types)+"::text[]")
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		where = append(where, "c.name ILIKE "+args.add("%"+escapeLike(search)+"%"))
	}
	if q.OwnedOnly {
		if viewerID == "" {
			return pokedexStatement{}, fmt.Errorf("%w: owned filter needs a signed in user", ErrInvalidFilter)
		}
		viewerPH = args.add(viewerID)
		where = append(where, ownedExpr(viewerPH))
	}

	sortBy := strings.ToLower(strings.TrimSpace(q.SortBy))
	if sortBy == "" {
		sortBy = "id"
	}
	column, ok := pokedexSortColumns[sortBy]
	if !ok {
		return pokedexStatement{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidFilter, q.SortBy)
	}
	direction := "ASC"
	switch strings.ToLower(strings.TrimSpace(q.SortOrder)) {
	case "", "asc":
	case "desc":
		direction = "DESC"
	default:
		return pokedexStatement{}, fmt.Errorf("%w: sort order %q", ErrInvalidFilter, q.SortOrder)
	}
	order := column + " " + direction
	if sortBy != "id" {
		order += ", c.id"
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	stmt := pokedexStatement{
		count:     "SELECT COUNT(1) FROM pokemon_catalog c" + clause,
		countArgs: append([]any(nil), args...),
	}

	owned := "false"
	if viewerID != "" {
		if viewerPH == "" {
			viewerPH = args.add(viewerID)
		}
		owned = ownedExpr(viewerPH)
	}
	limit := args.add(clampLimit(q.Limit, DefaultPokedexLimit, MaxPokedexLimit))
	offset := args.add(max(q.Offset, 0))
	stmt.page = "SELECT " + catalogColumns + ", " + owned + " FROM pokemon_catalog c" + clause +
		" ORDER BY " + order + " LIMIT " + limit + " OFFSET " + offset
	stmt.pageArgs = args
	return stmt, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
