package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/upgrades"
)

const (
	StarterPokemonID = 1
	MinPasswordLen   = 6

	DefaultRanksLimit = 50
	MaxRanksLimit     = 100

	DefaultPokedexLimit = 20
	MaxPokedexLimit     = 100
	DefaultBSTLimit     = 100
	MaxBSTLimit         = 200
	MaxPokemonBatch     = 50
)

var (
	ErrInvalidUsername      = errors.New("username must be 3-20 letters, digits or underscores")
	ErrInvalidPassword      = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidCredentials   = errors.New("incorrect username or password")
	ErrUserNotFound         = errors.New("user not found")
	ErrInsufficientFunds    = errors.New("not enough rare candy")
	ErrAlreadyOwned         = errors.New("pokemon already owned")
	ErrPokemonNotOwned      = errors.New("pokemon not owned")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrPokemonNotFound      = errors.New("pokemon not found")
	ErrInvalidFilter        = errors.New("invalid pokemon filter")
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

var blockedNameFragments = []string{
	"admin",
	"mod",
	"support",
	"shit",
	"fuck",
	"bitch",
	"nazi",
}

func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if !usernameRE.MatchString(username) {
		return ErrInvalidUsername
	}
	lower := strings.ToLower(username)
	for _, frag := range blockedNameFragments {
		if strings.Contains(lower, frag) {
			return fmt.Errorf("%w: contains a blocked word", ErrInvalidUsername)
		}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return ErrInvalidPassword
	}
	return nil
}

// InsufficientFunds wraps ErrInsufficientFunds with what was needed.
func InsufficientFunds(cost, balance candy.Amount) error {
	return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, balance)
}

// debit returns balance-cost or an insufficient funds error.
func debit(balance, cost candy.Amount) (candy.Amount, error) {
	if balance.LessThan(cost) {
		return balance, InsufficientFunds(cost, balance)
	}
	return balance.Sub(cost)
}

// UpgradeViews lists the catalog with each upgrade's level and next cost for
// the given levels.
func UpgradeViews(levels upgrades.Levels, pokemonCount int) ([]UpgradeView, error) {
	ctx := upgrades.Context{PokemonCount: pokemonCount}
	defs := upgrades.All()
	out := make([]UpgradeView, 0, len(defs))
	for _, def := range defs {
		level := levels.Level(def.Key)
		cost, err := upgrades.Cost(def.Key, level)
		if err != nil {
			return nil, err
		}
		view := UpgradeView{
			Key:         def.Key,
			DisplayName: def.DisplayName,
			Unit:        def.Unit,
			Level:       level,
			Effect:      def.Formula(level, ctx),
			NextCost:    cost,
		}
		if def.PerUnitBonus != nil {
			bonus := def.PerUnitBonus(level)
			view.PerUnitBonus = &bonus
		}
		out = append(out, view)
	}
	return out, nil
}

func clampRanksLimit(limit int) int {
	return clampLimit(limit, DefaultRanksLimit, MaxRanksLimit)
}

func clampLimit(limit, def, most int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, most)
}
