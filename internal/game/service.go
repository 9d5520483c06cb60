package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pokeclicker/internal/cache"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/pricing"
	"pokeclicker/internal/progression"
	"pokeclicker/internal/upgrades"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Service is the persistent user store behind the HTTP API. Prices and
// costs come from progression; every mutation runs in one transaction that
// locks the user row, then drops the user's cached views.
type Service struct {
	db   *pgxpool.Pool
	log  *slog.Logger
	prog *progression.Services
}

func NewService(db *pgxpool.Pool, prog *progression.Services, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:   db,
		log:  logger,
		prog: prog,
	}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Service) CreateUser(ctx context.Context, username, passwordHash string) (Profile, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return Profile{}, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Profile{}, err
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id::text
	`, username, passwordHash).Scan(&userID)
	if err != nil {
		if isUniqueViolation(err) {
			return Profile{}, ErrUsernameTaken
		}
		return Profile{}, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO owned_pokemon (user_id, pokemon_id, source)
		VALUES ($1, $2, 'starter')
	`, userID, StarterPokemonID); err != nil {
		return Profile{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Profile{}, err
	}
	s.log.Info("user created", "user_id", userID, "username", username)
	return s.Profile(ctx, userID)
}

func (s *Service) LookupLogin(ctx context.Context, username string) (LoginRecord, error) {
	var rec LoginRecord
	err := s.db.QueryRow(ctx, `
		SELECT id::text, username, password_hash
		FROM users
		WHERE lower(username) = lower($1)
	`, strings.TrimSpace(username)).Scan(&rec.UserID, &rec.Username, &rec.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, ErrInvalidCredentials
		}
		return rec, err
	}
	return rec, nil
}

// Profile returns the user's view, cached under user:<id>:profile.
func (s *Service) Profile(ctx context.Context, userID string) (Profile, error) {
	if err := checkUserID(userID); err != nil {
		return Profile{}, err
	}
	key := cache.UserKey(userID, "profile")
	if p, ok := cache.GetAs[Profile](s.prog.UserCache, key); ok {
		return p, nil
	}
	gen := s.prog.UserCache.Generation(userID)
	p, err := loadProfile(ctx, s.db, userID)
	if err != nil {
		return Profile{}, err
	}
	s.prog.UserCache.SetIfCurrent(userID, key, p, gen)
	return p, nil
}

func loadProfile(ctx context.Context, q querier, userID string) (Profile, error) {
	var p Profile
	var balance string
	err := q.QueryRow(ctx, `
		SELECT id::text, username, rare_candy, favorite_pokemon_id, selected_pokemon_id, show_in_ranks, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.Username, &balance, &p.FavoritePokemonID, &p.SelectedPokemonID, &p.ShowInRanks, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, ErrUserNotFound
		}
		return p, err
	}
	if p.RareCandy, err = candy.Parse(balance); err != nil {
		return p, fmt.Errorf("user %s balance: %w", userID, err)
	}

	p.Upgrades = upgrades.Levels{}
	rows, err := q.Query(ctx, `SELECT upgrade_key, level FROM user_upgrades WHERE user_id = $1`, userID)
	if err != nil {
		return p, err
	}
	for rows.Next() {
		var key string
		var level int
		if err := rows.Scan(&key, &level); err != nil {
			rows.Close()
			return p, err
		}
		p.Upgrades[key] = level
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return p, err
	}
	for _, key := range upgrades.Keys() {
		if _, ok := p.Upgrades[key]; !ok {
			p.Upgrades[key] = 1
		}
	}

	p.OwnedPokemonIDs = []int{}
	rows, err = q.Query(ctx, `SELECT pokemon_id FROM owned_pokemon WHERE user_id = $1 ORDER BY pokemon_id`, userID)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return p, err
		}
		p.OwnedPokemonIDs = append(p.OwnedPokemonIDs, id)
	}
	if err := rows.Err(); err != nil {
		return p, err
	}

	p.Yield = upgrades.ComputeYield(p.Upgrades, len(p.OwnedPokemonIDs))
	return p, nil
}

// AddCandy credits a non-negative amount. Replays with the same idempotency
// key are rejected with ErrDuplicateIdempotency.
func (s *Service) AddCandy(ctx context.Context, in AddCandyInput) (Profile, error) {
	if err := checkUserID(in.UserID); err != nil {
		return Profile{}, err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Profile{}, err
	}
	defer tx.Rollback(ctx)

	if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "add_candy"); err != nil {
		return Profile{}, err
	}
	balance, err := lockBalance(ctx, tx, in.UserID)
	if err != nil {
		return Profile{}, err
	}
	if err := setBalance(ctx, tx, in.UserID, balance.Add(in.Amount)); err != nil {
		return Profile{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Profile{}, err
	}
	s.invalidate(in.UserID)
	return s.Profile(ctx, in.UserID)
}

func (s *Service) UpgradeStat(ctx context.Context, userID, key string) (UpgradeResult, error) {
	out := UpgradeResult{Key: key}
	if err := checkUserID(userID); err != nil {
		return out, err
	}
	if _, err := upgrades.Lookup(key); err != nil {
		return out, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return out, err
	}
	level := 1
	err = tx.QueryRow(ctx, `
		SELECT level FROM user_upgrades WHERE user_id = $1 AND upgrade_key = $2
	`, userID, key).Scan(&level)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return out, err
	}
	cost, err := upgrades.Cost(key, level)
	if err != nil {
		return out, err
	}
	next, err := debit(balance, cost)
	if err != nil {
		return out, fmt.Errorf("%w (%s level %d)", err, key, level)
	}
	if err := setBalance(ctx, tx, userID, next); err != nil {
		return out, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO user_upgrades (user_id, upgrade_key, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, upgrade_key) DO UPDATE
		SET level = EXCLUDED.level, updated_at = now()
	`, userID, key, level+1); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}
	s.invalidate(userID)

	out.Level = level + 1
	out.Paid = cost
	if out.NextCost, err = upgrades.Cost(key, out.Level); err != nil {
		return out, err
	}
	out.Profile, err = s.Profile(ctx, userID)
	return out, err
}

// PurchasePokemon prices the pokemon before opening the transaction so the
// remote lookup never runs while the user row is locked.
func (s *Service) PurchasePokemon(ctx context.Context, userID string, pokemonID int) (PurchaseResult, error) {
	out := PurchaseResult{PokemonID: pokemonID}
	if err := checkUserID(userID); err != nil {
		return out, err
	}
	quote, err := s.prog.Pricing.Quote(ctx, pokemonID)
	if err != nil {
		return out, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return out, err
	}
	owned, err := ownsPokemon(ctx, tx, userID, pokemonID)
	if err != nil {
		return out, err
	}
	if owned {
		return out, ErrAlreadyOwned
	}
	next, err := debit(balance, quote.Price)
	if err != nil {
		return out, err
	}
	if err := setBalance(ctx, tx, userID, next); err != nil {
		return out, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO owned_pokemon (user_id, pokemon_id, source)
		VALUES ($1, $2, 'purchase')
	`, userID, pokemonID); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}
	s.invalidate(userID)

	out.Paid = quote.Price
	out.Estimated = quote.Estimated
	out.Profile, err = s.Profile(ctx, userID)
	return out, err
}

// CatchPokemon grants a pokemon for free. Catching one already owned is a
// no-op.
func (s *Service) CatchPokemon(ctx context.Context, userID string, pokemonID int) (Profile, error) {
	if err := checkUserID(userID); err != nil {
		return Profile{}, err
	}
	if pokemonID < 1 {
		return Profile{}, fmt.Errorf("%w: got %d", pricing.ErrInvalidPokemonID, pokemonID)
	}
	cmd, err := s.db.Exec(ctx, `
		INSERT INTO owned_pokemon (user_id, pokemon_id, source)
		VALUES ($1, $2, 'catch')
		ON CONFLICT (user_id, pokemon_id) DO NOTHING
	`, userID, pokemonID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, err
	}
	if cmd.RowsAffected() > 0 {
		s.invalidate(userID)
	}
	return s.Profile(ctx, userID)
}

func (s *Service) PokemonUpgrade(ctx context.Context, userID string, pokemonID int) (PokemonUpgradeView, error) {
	out := PokemonUpgradeView{PokemonID: pokemonID}
	if err := checkUserID(userID); err != nil {
		return out, err
	}
	bst, _, err := s.prog.Pricing.BST(ctx, pokemonID)
	if err != nil {
		return out, err
	}
	out.Level, err = pokemonLevel(ctx, s.db, userID, pokemonID)
	if err != nil {
		return out, err
	}
	out.Cost, err = pricing.PokemonUpgradeCost(bst, out.Level)
	return out, err
}

func (s *Service) UpgradePokemon(ctx context.Context, userID string, pokemonID int) (PokemonUpgradeView, error) {
	out := PokemonUpgradeView{PokemonID: pokemonID}
	if err := checkUserID(userID); err != nil {
		return out, err
	}
	bst, _, err := s.prog.Pricing.BST(ctx, pokemonID)
	if err != nil {
		return out, err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return out, err
	}
	owned, err := ownsPokemon(ctx, tx, userID, pokemonID)
	if err != nil {
		return out, err
	}
	if !owned {
		return out, ErrPokemonNotOwned
	}
	level, err := pokemonLevel(ctx, tx, userID, pokemonID)
	if err != nil {
		return out, err
	}
	cost, err := pricing.PokemonUpgradeCost(bst, level)
	if err != nil {
		return out, err
	}
	next, err := debit(balance, cost)
	if err != nil {
		return out, err
	}
	if err := setBalance(ctx, tx, userID, next); err != nil {
		return out, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO pokemon_upgrades (user_id, pokemon_id, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, pokemon_id) DO UPDATE
		SET level = EXCLUDED.level, updated_at = now()
	`, userID, pokemonID, level+1); err != nil {
		return out, err
	}
	if err := tx.Commit(ctx); err != nil {
		return out, err
	}
	s.invalidate(userID)

	out.Level = level + 1
	if out.Cost, err = pricing.PokemonUpgradeCost(bst, out.Level); err != nil {
		return out, err
	}
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return out, err
	}
	out.Profile = &p
	return out, nil
}

var pokemonPrefColumns = map[string]string{
	"favorite": `UPDATE users SET favorite_pokemon_id = $2, updated_at = now() WHERE id = $1`,
	"selected": `UPDATE users SET selected_pokemon_id = $2, updated_at = now() WHERE id = $1`,
}

func (s *Service) SetFavoritePokemon(ctx context.Context, userID string, pokemonID *int) (Profile, error) {
	return s.setPokemonPref(ctx, "favorite", userID, pokemonID)
}

func (s *Service) SetSelectedPokemon(ctx context.Context, userID string, pokemonID *int) (Profile, error) {
	return s.setPokemonPref(ctx, "selected", userID, pokemonID)
}

// setPokemonPref sets or clears (nil) one of the user's pokemon slots. The
// pokemon must be owned.
func (s *Service) setPokemonPref(ctx context.Context, slot, userID string, pokemonID *int) (Profile, error) {
	if err := checkUserID(userID); err != nil {
		return Profile{}, err
	}
	if pokemonID != nil {
		owned, err := ownsPokemon(ctx, s.db, userID, *pokemonID)
		if err != nil {
			return Profile{}, err
		}
		if !owned {
			return Profile{}, ErrPokemonNotOwned
		}
	}
	cmd, err := s.db.Exec(ctx, pokemonPrefColumns[slot], userID, pokemonID)
	if err != nil {
		return Profile{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Profile{}, ErrUserNotFound
	}
	s.invalidate(userID)
	return s.Profile(ctx, userID)
}

func (s *Service) SetShowInRanks(ctx context.Context, userID string, show bool) (Profile, error) {
	if err := checkUserID(userID); err != nil {
		return Profile{}, err
	}
	cmd, err := s.db.Exec(ctx, `UPDATE users SET show_in_ranks = $2, updated_at = now() WHERE id = $1`, userID, show)
	if err != nil {
		return Profile{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Profile{}, ErrUserNotFound
	}
	s.invalidate(userID)
	return s.Profile(ctx, userID)
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := checkUserID(userID); err != nil {
		return err
	}
	cmd, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	s.invalidate(userID)
	s.log.Info("user deleted", "user_id", userID)
	return nil
}

// Ranks returns both leagues. The shared page is cached under
// ranks:<limit>:<offset>; the viewer's own position under user:<id>:ranks.
func (s *Service) Ranks(ctx context.Context, viewerID string, limit, offset int) (Ranks, error) {
	limit = clampRanksLimit(limit)
	if offset < 0 {
		offset = 0
	}
	key := fmt.Sprintf("ranks:%d:%d", limit, offset)
	out, ok := cache.GetAs[Ranks](s.prog.UserCache, key)
	if !ok {
		var err error
		out, err = s.loadRanks(ctx, limit, offset)
		if err != nil {
			return out, err
		}
		s.prog.UserCache.Set(key, out)
	}
	if viewerID == "" || checkUserID(viewerID) != nil {
		return out, nil
	}
	viewerKey := cache.UserKey(viewerID, "ranks")
	viewer, ok := cache.GetAs[ViewerRanks](s.prog.UserCache, viewerKey)
	if !ok {
		gen := s.prog.UserCache.Generation(viewerID)
		var err error
		viewer, err = s.loadViewerRanks(ctx, viewerID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return out, nil
			}
			return out, err
		}
		s.prog.UserCache.SetIfCurrent(viewerID, viewerKey, viewer, gen)
	}
	out.Viewer = &viewer
	return out, nil
}

func (s *Service) loadRanks(ctx context.Context, limit, offset int) (Ranks, error) {
	var out Ranks
	var err error
	out.CandyLeague, err = queryLeague(ctx, s.db, `
		SELECT RANK() OVER (ORDER BY rare_candy::numeric DESC) AS position,
		       id::text, username, rare_candy
		FROM users
		WHERE show_in_ranks
		ORDER BY rare_candy::numeric DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return out, err
	}
	out.PokemonLeague, err = queryLeague(ctx, s.db, `
		WITH counts AS (
			SELECT u.id, u.username, COUNT(o.pokemon_id) AS pokemon_count
			FROM users u
			LEFT JOIN owned_pokemon o ON o.user_id = u.id
			WHERE u.show_in_ranks
			GROUP BY u.id, u.username
		)
		SELECT RANK() OVER (ORDER BY pokemon_count DESC) AS position,
		       id::text, username, pokemon_count::text
		FROM counts
		ORDER BY pokemon_count DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return out, err
	}
	err = s.db.QueryRow(ctx, `SELECT COUNT(1) FROM users WHERE show_in_ranks`).Scan(&out.TotalPlayers)
	return out, err
}

func queryLeague(ctx context.Context, q querier, sql string, limit, offset int) ([]RankRow, error) {
	rows, err := q.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []RankRow{}
	for rows.Next() {
		var r RankRow
		if err := rows.Scan(&r.Position, &r.UserID, &r.Username, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Service) loadViewerRanks(ctx context.Context, userID string) (ViewerRanks, error) {
	var out ViewerRanks
	err := s.db.QueryRow(ctx, `
		WITH counts AS (
			SELECT u.id, u.show_in_ranks, u.rare_candy::numeric AS candy, COUNT(o.pokemon_id) AS pokemon_count
			FROM users u
			LEFT JOIN owned_pokemon o ON o.user_id = u.id
			GROUP BY u.id
		),
		me AS (SELECT candy, pokemon_count FROM counts WHERE id = $1)
		SELECT 1 + (SELECT COUNT(1) FROM counts c WHERE c.show_in_ranks AND c.candy > me.candy),
		       1 + (SELECT COUNT(1) FROM counts c WHERE c.show_in_ranks AND c.pokemon_count > me.pokemon_count)
		FROM me
	`, userID).Scan(&out.CandyRank, &out.PokemonRank)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrUserNotFound
	}
	return out, err
}

// RefreshCatalog prices ids 1..maxID in batches and upserts them into
// pokemon_catalog. Lookups inside a batch run concurrently; the pricing
// engine rate limits and collapses them.
func (s *Service) RefreshCatalog(ctx context.Context, maxID, batchSize, concurrency int) (CatalogRefresh, error) {
	var out CatalogRefresh
	if batchSize < 1 {
		batchSize = 1
	}
	if concurrency < 1 {
		concurrency = 1
	}
	for start := 1; start <= maxID; start += batchSize {
		end := min(start+batchSize-1, maxID)
		entries := make([]CatalogEntry, end-start+1)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for id := start; id <= end; id++ {
			g.Go(func() error {
				q, rec, err := s.prog.Pricing.Describe(gctx, id)
				if err != nil {
					return err
				}
				entries[id-start] = entryFromQuote(q, rec)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return out, err
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO pokemon_catalog (id, name, generation, types, sprite, bst, price, estimated, refreshed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
				ON CONFLICT (id) DO UPDATE
				SET name = CASE WHEN EXCLUDED.name = '' THEN pokemon_catalog.name ELSE EXCLUDED.name END,
				    generation = EXCLUDED.generation,
				    types = CASE WHEN cardinality(EXCLUDED.types) = 0 THEN pokemon_catalog.types ELSE EXCLUDED.types END,
				    sprite = CASE WHEN EXCLUDED.sprite = '' THEN pokemon_catalog.sprite ELSE EXCLUDED.sprite END,
				    bst = EXCLUDED.bst,
				    price = EXCLUDED.price,
				    estimated = EXCLUDED.estimated,
				    refreshed_at = now()
			`, e.ID, e.Name, e.Generation, e.Types, e.Sprite, e.BST, e.Price.String(), e.Estimated)
			if e.Estimated {
				out.Estimated++
			}
		}
		br := s.db.SendBatch(ctx, batch)
		for range entries {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return out, fmt.Errorf("upsert catalog %d-%d: %w", start, end, err)
			}
		}
		if err := br.Close(); err != nil {
			return out, err
		}
		out.Upserted += len(entries)
		out.Batches++
		s.log.Info("catalog batch refreshed", "from", start, "to", end)
	}
	return out, nil
}

func (s *Service) invalidate(userID string) {
	if n := s.prog.UserCache.Invalidate(userID); n > 0 {
		s.log.Debug("user cache invalidated", "user_id", userID, "keys", n)
	}
}

func checkUserID(userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrUserNotFound
	}
	return nil
}

func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (candy.Amount, error) {
	var raw string
	err := tx.QueryRow(ctx, `SELECT rare_candy FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return candy.Zero, ErrUserNotFound
		}
		return candy.Zero, err
	}
	return candy.Parse(raw)
}

func setBalance(ctx context.Context, tx pgx.Tx, userID string, balance candy.Amount) error {
	_, err := tx.Exec(ctx, `
		UPDATE users SET rare_candy = $2, updated_at = now() WHERE id = $1
	`, userID, balance.String())
	return err
}

func ownsPokemon(ctx context.Context, q querier, userID string, pokemonID int) (bool, error) {
	var owned bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM owned_pokemon WHERE user_id = $1 AND pokemon_id = $2)
	`, userID, pokemonID).Scan(&owned)
	return owned, err
}

func pokemonLevel(ctx context.Context, q querier, userID string, pokemonID int) (int, error) {
	level := 1
	err := q.QueryRow(ctx, `
		SELECT level FROM pokemon_upgrades WHERE user_id = $1 AND pokemon_id = $2
	`, userID, pokemonID).Scan(&level)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	return level, nil
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, userID, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO idempotency_keys (user_id, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
