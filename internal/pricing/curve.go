package pricing

import (
	"math"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/upgrades"

	"github.com/shopspring/decimal"
)

const (
	curveBase       = 100.0
	curveOffset     = 200.0
	curveSoftScale  = 15.0
	curveSteepScale = 5.0
	curveKnee       = 600
)

func lowerCurve(bst float64) float64 {
	return curveBase * math.Exp((bst-curveOffset)/curveSoftScale)
}

// upperCurve continues from the value at the knee and grows three times as
// fast.
func upperCurve(bst float64) float64 {
	return lowerCurve(curveKnee) * math.Exp((bst-curveKnee)/curveSteepScale)
}

// PriceForBST turns a base stat total into a whole-candy price. The curve
// is non-decreasing in bst and continuous at 600.
func PriceForBST(bst int) candy.Amount {
	if bst < 0 {
		bst = 0
	}
	var v float64
	if bst < curveKnee {
		v = lowerCurve(float64(bst))
	} else {
		v = upperCurve(float64(bst))
	}
	if math.IsInf(v, 1) {
		v = math.MaxFloat64
	}
	out, err := candy.FromFloat(v)
	if err != nil {
		return candy.Zero
	}
	return out.Floor()
}

const minPokemonUpgradeBase = 25

// PokemonUpgradeCost prices the next level of an owned pokemon:
// floor(max(25, floor(bst/2)) * 2.5^(level-1)).
func PokemonUpgradeCost(bst, level int) (candy.Amount, error) {
	if level < 1 {
		return candy.Zero, upgrades.ErrInvalidLevel
	}
	base := max(minPokemonUpgradeBase, bst/2)
	return upgrades.GeometricCost(decimal.NewFromInt(int64(base)), 2.5, level-1), nil
}
