// Package upgrades is the static catalog of clicker upgrades and the cost
// calculator that prices the next level of each one.
package upgrades

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnknownUpgrade = errors.New("unknown upgrade")
	ErrInvalidLevel   = errors.New("upgrade level must be >= 1")
)

const (
	ClickPower         = "clickPower"
	Autoclicker        = "autoclicker"
	LuckyHitChance     = "luckyHitChance"
	LuckyHitMultiplier = "luckyHitMultiplier"
	ClickMultiplier    = "clickMultiplier"
	PokedexBonus       = "pokedexBonus"
)

// Context carries the second quantity some formulas scale with.
type Context struct {
	PokemonCount int
}

// Definition describes one upgrade. Formula returns the gameplay multiplier
// at a level; these are display multipliers and stay float64.
type Definition struct {
	Key            string
	DisplayName    string
	Formula        func(level int, ctx Context) float64
	CostMultiplier float64
	Unit           string
	// PerUnitBonus is set for upgrades whose effect also scales with the
	// number of owned Pokémon.
	PerUnitBonus func(level int) float64
}

var catalog = map[string]Definition{
	ClickPower: {
		Key:         ClickPower,
		DisplayName: "Click Power",
		Formula: func(level int, _ Context) float64 {
			l := float64(level)
			return math.Pow(1.0954, l/(1+0.001*l))
		},
		CostMultiplier: 1.3416,
		Unit:           "candy/click",
	},
	Autoclicker: {
		Key:         Autoclicker,
		DisplayName: "Autoclicker",
		Formula: func(level int, _ Context) float64 {
			l := float64(level)
			return math.Pow(1.0954, l/(1+0.01*l))
		},
		CostMultiplier: 1.3038,
		Unit:           "clicks/sec",
	},
	LuckyHitChance: {
		Key:         LuckyHitChance,
		DisplayName: "Lucky Chance",
		Formula: func(level int, _ Context) float64 {
			return 2 * math.Log(1+0.5*float64(level))
		},
		CostMultiplier: 1.5,
		Unit:           "% lucky chance",
	},
	LuckyHitMultiplier: {
		Key:         LuckyHitMultiplier,
		DisplayName: "Lucky Power",
		Formula: func(level int, _ Context) float64 {
			l := float64(level)
			return math.Pow(1.2, l/(1+0.01*l))
		},
		CostMultiplier: 1.6,
		Unit:           "x on lucky",
	},
	ClickMultiplier: {
		Key:         ClickMultiplier,
		DisplayName: "Click Boost",
		Formula: func(level int, _ Context) float64 {
			return 1 + float64(level)*0.15
		},
		CostMultiplier: 1.7,
		Unit:           "% click power",
	},
	PokedexBonus: {
		Key:         PokedexBonus,
		DisplayName: "Pokedex Bonus",
		Formula: func(level int, ctx Context) float64 {
			n := ctx.PokemonCount
			if n < 0 {
				n = 0
			}
			return math.Pow(1.005, float64(level)*math.Sqrt(float64(n)))
		},
		CostMultiplier: 2.5,
		Unit:           "% per Pokemon",
		PerUnitBonus: func(level int) float64 {
			return 0.5 * float64(level)
		},
	},
}

// Lookup is the only way to resolve a key. Unknown keys are rejected; there
// is no fallback curve.
func Lookup(key string) (Definition, error) {
	def, ok := catalog[key]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownUpgrade, key)
	}
	return def, nil
}

func IsUpgrade(key string) bool {
	_, ok := catalog[key]
	return ok
}

// Keys returns the catalog keys in a stable order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every definition ordered by key.
func All() []Definition {
	keys := Keys()
	out := make([]Definition, 0, len(keys))
	for _, k := range keys {
		out = append(out, catalog[k])
	}
	return out
}
