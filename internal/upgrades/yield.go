package upgrades

import (
	"pokeclicker/internal/candy"
)

// Levels maps upgrade key to owned level. Missing keys count as level 1.
type Levels map[string]int

func (l Levels) Level(key string) int {
	if v, ok := l[key]; ok && v >= 1 {
		return v
	}
	return 1
}

// Yield summarises what a player's upgrades produce. The fields are display
// multipliers; only ClickAmount and PassiveAmount cross into exact candy.
type Yield struct {
	CandyPerClick   float64 `json:"candy_per_click"`
	LuckyChancePct  float64 `json:"lucky_chance_pct"`
	LuckyMultiplier float64 `json:"lucky_multiplier"`
	ClicksPerSecond float64 `json:"clicks_per_second"`
	PokedexBonus    float64 `json:"pokedex_bonus"`
}

func ComputeYield(levels Levels, pokemonCount int) Yield {
	ctx := Context{PokemonCount: pokemonCount}
	eval := func(key string) float64 {
		return catalog[key].Formula(levels.Level(key), ctx)
	}
	bonus := eval(PokedexBonus)
	return Yield{
		CandyPerClick:   eval(ClickPower) * eval(ClickMultiplier) * bonus,
		LuckyChancePct:  eval(LuckyHitChance),
		LuckyMultiplier: eval(LuckyHitMultiplier),
		ClicksPerSecond: eval(Autoclicker),
		PokedexBonus:    bonus,
	}
}

// ClickAmount floors one click into whole candy, never less than one.
func (y Yield) ClickAmount(lucky bool) candy.Amount {
	per := y.CandyPerClick
	if lucky {
		per *= y.LuckyMultiplier
	}
	out := candy.FromInt(1).MulRate(per).Floor()
	if out.IsZero() {
		return candy.FromInt(1)
	}
	return out
}

// PassiveAmount is what the autoclicker earns over the given seconds.
func (y Yield) PassiveAmount(seconds float64) candy.Amount {
	if seconds <= 0 {
		return candy.Zero
	}
	return candy.FromInt(1).MulRate(y.CandyPerClick * y.ClicksPerSecond * seconds).Floor()
}
