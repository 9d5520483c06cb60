// Package candy holds the exact numeric type used for every rare candy
// balance, cost and price in the game.
//
// Balances grow exponentially with upgrades and quickly pass the range a
// float64 can represent exactly, so all ledger arithmetic goes through Amount
// and values are persisted as canonical decimal strings.
package candy

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid candy amount")
	ErrNegativeAmount = errors.New("candy amount must not be negative")
)

// Parsed strings are limited so a short input cannot expand into a huge
// value. 400 integer digits covers every price up to math.MaxFloat64.
const (
	MaxIntegerDigits  = 400
	MaxFractionDigits = 32
)

var plainDecimalRE = regexp.MustCompile(`^-?(\d+)(?:\.(\d+))?$`)

// Amount is a non-negative, arbitrary precision decimal. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

var Zero = Amount{}

// New builds an Amount from a string, an integer or float, a decimal.Decimal,
// another Amount, or nil (which yields zero). Negative and non-finite inputs
// are rejected.
func New(v any) (Amount, error) {
	switch x := v.(type) {
	case nil:
		return Zero, nil
	case Amount:
		return x, nil
	case *Amount:
		if x == nil {
			return Zero, nil
		}
		return *x, nil
	case decimal.Decimal:
		return fromDecimal(x)
	case string:
		return Parse(x)
	case int:
		return fromDecimal(decimal.NewFromInt(int64(x)))
	case int32:
		return fromDecimal(decimal.NewFromInt32(x))
	case int64:
		return fromDecimal(decimal.NewFromInt(x))
	case uint64:
		return fromDecimal(decimal.NewFromUint64(x))
	case float64:
		return FromFloat(x)
	default:
		return Zero, fmt.Errorf("%w: unsupported type %T", ErrInvalidAmount, v)
	}
}

// Parse reads a plain decimal string such as "12" or "0.5". Exponent
// notation, signs other than a leading minus, and values beyond
// MaxIntegerDigits or MaxFractionDigits are rejected. An empty string is
// treated as absent and yields zero, matching how missing balances are
// stored.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, nil
	}
	m := plainDecimalRE.FindStringSubmatch(s)
	if m == nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, truncate(s))
	}
	if len(m[1]) > MaxIntegerDigits || len(m[2]) > MaxFractionDigits {
		return Zero, fmt.Errorf("%w: more than %d integer or %d fraction digits", ErrInvalidAmount, MaxIntegerDigits, MaxFractionDigits)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, truncate(s))
	}
	return fromDecimal(d)
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromInt is for trusted integers such as computed costs. Negative input
// clamps to zero.
func FromInt(v int64) Amount {
	if v < 0 {
		return Zero
	}
	return Amount{d: decimal.NewFromInt(v)}
}

func FromFloat(v float64) (Amount, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, v)
	}
	return fromDecimal(decimal.NewFromFloat(v))
}

func fromDecimal(d decimal.Decimal) (Amount, error) {
	if d.Sign() < 0 {
		return Zero, fmt.Errorf("%w: %s", ErrNegativeAmount, d.String())
	}
	return Amount{d: d}, nil
}

func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d)}
}

// Sub returns a-b, or ErrNegativeAmount when b exceeds a. Callers compare
// first when they need a domain error such as insufficient funds.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.d.LessThan(b.d) {
		return a, fmt.Errorf("%w: %s - %s", ErrNegativeAmount, a, b)
	}
	return Amount{d: a.d.Sub(b.d)}, nil
}

// MulRate multiplies by a plain rate such as an upgrade multiplier. Negative
// or non-finite rates produce zero.
func (a Amount) MulRate(rate float64) Amount {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return Zero
	}
	return Amount{d: a.d.Mul(decimal.NewFromFloat(rate))}
}

// Floor drops the fractional part. Balances are whole candies.
func (a Amount) Floor() Amount {
	return Amount{d: a.d.Floor()}
}

func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

func (a Amount) LessThan(b Amount) bool {
	return a.d.LessThan(b.d)
}

func (a Amount) IsZero() bool {
	return a.d.IsZero()
}

// String is the canonical form used for persistence: no exponent, no
// trailing fractional zeros.
func (a Amount) String() string {
	return a.d.String()
}

// Float64 converts for display and coarse threshold checks only. Values past
// 2^53 lose precision and values past math.MaxFloat64 become +Inf.
func (a Amount) Float64() float64 {
	return a.d.InexactFloat64()
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// MarshalJSON always writes a JSON string so clients never round through a
// float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*a = Zero
		return nil
	}
	return a.UnmarshalText([]byte(strings.Trim(s, `"`)))
}

// Scan reads TEXT/NUMERIC columns.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Zero
		return nil
	case string:
		return a.UnmarshalText([]byte(v))
	case []byte:
		return a.UnmarshalText(v)
	case int64:
		*a = FromInt(v)
		return nil
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidAmount, src)
	}
}

func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}
