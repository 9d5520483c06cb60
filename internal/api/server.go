package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pokeclicker/internal/auth"
	"pokeclicker/internal/candy"
	"pokeclicker/internal/config"
	"pokeclicker/internal/game"
	"pokeclicker/internal/pricing"
	"pokeclicker/internal/progression"
	"pokeclicker/internal/upgrades"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID   string
	Username string
	Token    string
}

type Server struct {
	cfg       config.APIConfig
	log       *slog.Logger
	tokens    *auth.Tokens
	passwords *auth.Passwords
	prog      *progression.Services
	game      *game.Service
	mux       *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, tokens *auth.Tokens, passwords *auth.Passwords, prog *progression.Services, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		log:       logger,
		tokens:    tokens,
		passwords: passwords,
		prog:      prog,
		game:      gameSvc,
		mux:       chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.optionalAuthMiddleware)
			r.Get("/upgrades", s.handleUpgradesList)
			r.Get("/pokemon", s.handlePokemonList)
			r.Get("/pokemon/{id}", s.handlePokemon)
			r.Get("/pokemon/{id}/price", s.handlePokemonPrice)
			r.Get("/pokedex", s.handlePokedex)
			r.Get("/pokedex/bst", s.handlePokedexByBST)
			r.Get("/ranks", s.handleRanks)
			r.Get("/cache/stats", s.handleCacheStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/me", s.handleMe)
			r.Delete("/me", s.handleDeleteMe)
			r.Put("/me/favorite", s.handleSetFavorite)
			r.Put("/me/selected", s.handleSetSelected)
			r.Put("/me/ranks", s.handleSetShowInRanks)
			r.Get("/me/pokemon/by-bst", s.handleOwnedByBST)
			r.Post("/candy", s.handleAddCandy)
			r.Post("/upgrades/{key}", s.handleUpgradeStat)
			r.Post("/pokemon/{id}/purchase", s.handlePurchasePokemon)
			r.Post("/pokemon/{id}/catch", s.handleCatchPokemon)
			r.Get("/pokemon/{id}/upgrade", s.handlePokemonUpgrade)
			r.Post("/pokemon/{id}/upgrade", s.handleUpgradePokemon)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), claims, token)))
	})
}

// optionalAuthMiddleware attaches the caller when a valid token is present
// and lets anonymous requests through.
func (s *Server) optionalAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token != "" {
			if claims, err := s.tokens.Verify(token); err == nil {
				r = r.WithContext(withUser(r.Context(), claims, token))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func withUser(ctx context.Context, claims auth.Claims, token string) context.Context {
	return context.WithValue(ctx, userContextKey, UserContext{
		UserID:   claims.UserID,
		Username: claims.Username,
		Token:    token,
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	auth.Session
	User game.Profile `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	if err := game.ValidateUsername(in.Username); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := game.ValidatePassword(in.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	profile, err := s.game.CreateUser(r.Context(), in.Username, hash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.tokens.Issue(profile.ID, profile.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Session: session, User: profile})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "missing username or password")
		return
	}
	rec, err := s.game.LookupLogin(r.Context(), in.Username)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.passwords.Check(rec.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			writeDomainError(w, game.ErrInvalidCredentials)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	profile, err := s.game.Profile(r.Context(), rec.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.tokens.Issue(rec.UserID, rec.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Session: session, User: profile})
}

func (s *Server) handleUpgradesList(w http.ResponseWriter, r *http.Request) {
	levels := upgrades.Levels{}
	owned := 0
	if user, err := userFromContext(r.Context()); err == nil {
		profile, err := s.game.Profile(r.Context(), user.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		levels = profile.Upgrades
		owned = len(profile.OwnedPokemonIDs)
	}
	out, err := game.UpgradeViews(levels, owned)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": out})
}

func (s *Server) handlePokemonPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := s.prog.Pricing.Quote(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handlePokemon(w http.ResponseWriter, r *http.Request) {
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PokemonByID(r.Context(), viewerID(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePokemonList(w http.ResponseWriter, r *http.Request) {
	ids, err := intListQuery(r, "ids")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	out, err := s.game.PokemonByIDs(r.Context(), viewerID(r), ids)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pokemon": out})
}

func (s *Server) handlePokedex(w http.ResponseWriter, r *http.Request) {
	q, err := pokedexQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.Pokedex(r.Context(), viewerID(r), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePokedexByBST(w http.ResponseWriter, r *http.Request) {
	minBST, okMin, err := intQuery(r, "min")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxBST, okMax, err := intQuery(r, "max")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !okMin || !okMax {
		writeError(w, http.StatusBadRequest, "min and max are required")
		return
	}
	limit, _, err := intQuery(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PokemonByBSTRange(r.Context(), viewerID(r), minBST, maxBST, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pokemon": out})
}

func (s *Server) handleOwnedByBST(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	ids, err := s.game.OwnedPokemonIDsByBST(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pokemon_ids": ids})
}

func (s *Server) handleRanks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	viewer := ""
	if user, err := userFromContext(r.Context()); err == nil {
		viewer = user.UserID
	}
	out, err := s.game.Ranks(r.Context(), viewer, limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.prog.CacheStats())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.Profile(r.Context(), user.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.game.DeleteUser(r.Context(), user.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	s.handlePokemonSlot(w, r, s.game.SetFavoritePokemon)
}

func (s *Server) handleSetSelected(w http.ResponseWriter, r *http.Request) {
	s.handlePokemonSlot(w, r, s.game.SetSelectedPokemon)
}

func (s *Server) handlePokemonSlot(w http.ResponseWriter, r *http.Request, set func(context.Context, string, *int) (game.Profile, error)) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		PokemonID *int `json:"pokemon_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := set(r.Context(), user.UserID, in.PokemonID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetShowInRanks(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		ShowInRanks bool `json:"show_in_ranks"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.SetShowInRanks(r.Context(), user.UserID, in.ShowInRanks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddCandy(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Amount candy.Amount `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AddCandy(r.Context(), game.AddCandyInput{
		UserID:         user.UserID,
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgradeStat(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.game.UpgradeStat(r.Context(), user.UserID, chi.URLParam(r, "key"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePurchasePokemon(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PurchasePokemon(r.Context(), user.UserID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCatchPokemon(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CatchPokemon(r.Context(), user.UserID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePokemonUpgrade(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PokemonUpgrade(r.Context(), user.UserID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgradePokemon(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := pokemonIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.UpgradePokemon(r.Context(), user.UserID, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrDuplicateIdempotency),
		errors.Is(err, game.ErrUsernameTaken),
		errors.Is(err, game.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds),
		errors.Is(err, game.ErrPokemonNotOwned),
		errors.Is(err, game.ErrInvalidUsername),
		errors.Is(err, game.ErrInvalidPassword),
		errors.Is(err, upgrades.ErrUnknownUpgrade),
		errors.Is(err, upgrades.ErrInvalidLevel),
		errors.Is(err, pricing.ErrInvalidPokemonID),
		errors.Is(err, game.ErrInvalidFilter),
		errors.Is(err, candy.ErrInvalidAmount),
		errors.Is(err, candy.ErrNegativeAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrUserNotFound),
		errors.Is(err, game.ErrPokemonNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pokemonIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, fmt.Errorf("pokemon id must be an integer")
	}
	return id, nil
}

// viewerID is the caller on optional-auth routes, or "" when anonymous.
func viewerID(r *http.Request) string {
	if user, err := userFromContext(r.Context()); err == nil {
		return user.UserID
	}
	return ""
}

func intQuery(r *http.Request, name string) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be an integer", name)
	}
	return v, true, nil
}

func intListQuery(r *http.Request, name string) ([]int, error) {
	var out []int
	for _, part := range splitList(r.URL.Query().Get(name)) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%s must be a comma separated list of integers", name)
		}
		out = append(out, v)
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pokedexQuery(r *http.Request) (game.PokedexQuery, error) {
	v := r.URL.Query()
	q := game.PokedexQuery{
		Search:     v.Get("search"),
		Generation: v.Get("generation"),
		Types:      splitList(v.Get("types")),
		SortBy:     v.Get("sort"),
		SortOrder:  v.Get("order"),
	}
	var err error
	if q.Limit, _, err = intQuery(r, "limit"); err != nil {
		return q, err
	}
	if q.Offset, _, err = intQuery(r, "offset"); err != nil {
		return q, err
	}
	if raw := strings.TrimSpace(v.Get("owned")); raw != "" {
		if q.OwnedOnly, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("owned must be true or false")
		}
	}
	return q, nil
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
