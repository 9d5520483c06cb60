package upgrades

import (
	"fmt"

	"pokeclicker/internal/candy"

	"github.com/shopspring/decimal"
)

// BaseCost is the price of the first purchase (level 1 -> 2) of every upgrade.
const BaseCost = 25

// Cost prices the transition from currentLevel to currentLevel+1:
//
//	floor(BaseCost * costMultiplier^(currentLevel-1))
//
// The power is evaluated exactly, so the result is monotonic for any level.
func Cost(key string, currentLevel int) (candy.Amount, error) {
	def, err := Lookup(key)
	if err != nil {
		return candy.Zero, err
	}
	if currentLevel < 1 {
		return candy.Zero, fmt.Errorf("%w: got %d", ErrInvalidLevel, currentLevel)
	}
	return GeometricCost(decimal.NewFromInt(BaseCost), def.CostMultiplier, currentLevel-1), nil
}

// GeometricCost returns floor(base * growth^exp) using exact decimal math.
func GeometricCost(base decimal.Decimal, growth float64, exp int) candy.Amount {
	if exp < 0 {
		exp = 0
	}
	v := base.Mul(powInt(decimal.NewFromFloat(growth), exp)).Floor()
	out, err := candy.New(v)
	if err != nil {
		return candy.Zero
	}
	return out
}

// powInt is exponentiation by squaring. Decimal multiplication is exact, so
// no rounding happens before the final floor.
func powInt(b decimal.Decimal, n int) decimal.Decimal {
	result := decimal.NewFromInt(1)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(b)
		}
		n >>= 1
		if n > 0 {
			b = b.Mul(b)
		}
	}
	return result
}
