package candy

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewAcceptsSupportedInputs(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: "0"},
		{name: "empty string", in: "", want: "0"},
		{name: "string", in: "12345", want: "12345"},
		{name: "fraction", in: "1.50", want: "1.5"},
		{name: "int", in: 42, want: "42"},
		{name: "int64", in: int64(9_007_199_254_740_993), want: "9007199254740993"},
		{name: "float", in: 2.5, want: "2.5"},
		{name: "decimal", in: decimal.NewFromInt(7), want: "7"},
		{name: "amount", in: MustParse("99"), want: "99"},
	}
	for _, tc := range tests {
		got, err := New(tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.String() != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestNewRejectsInvalidInputs(t *testing.T) {
	tests := []struct {
		in   any
		want error
	}{
		{in: "abc", want: ErrInvalidAmount},
		{in: "-1", want: ErrNegativeAmount},
		{in: -3, want: ErrNegativeAmount},
		{in: math.NaN(), want: ErrInvalidAmount},
		{in: math.Inf(1), want: ErrInvalidAmount},
		{in: []int{1}, want: ErrInvalidAmount},
	}
	for _, tc := range tests {
		_, err := New(tc.in)
		if !errors.Is(err, tc.want) {
			t.Fatalf("input %v: got %v want %v", tc.in, err, tc.want)
		}
	}
}

func TestParseRejectsExpandingInput(t *testing.T) {
	tests := []string{
		"1e50000000",
		"1E5",
		"5e-3",
		"+5",
		".5",
		"5.",
		"0x10",
		"1_000",
		strings.Repeat("9", MaxIntegerDigits+1),
		"1." + strings.Repeat("1", MaxFractionDigits+1),
	}
	for _, in := range tests {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%.40q: expected ErrInvalidAmount, got %v", in, err)
		}
	}
	var a Amount
	if err := json.Unmarshal([]byte(`"1e50000000"`), &a); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("json string: expected ErrInvalidAmount, got %v", err)
	}
	if err := json.Unmarshal([]byte(`1e9`), &a); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("json number: expected ErrInvalidAmount, got %v", err)
	}
}

func TestParseAcceptsLimits(t *testing.T) {
	tests := []string{
		strings.Repeat("9", MaxIntegerDigits),
		"0." + strings.Repeat("1", MaxFractionDigits),
		"007",
	}
	for _, in := range tests {
		a, err := Parse(in)
		if err != nil {
			t.Fatalf("%.40q: %v", in, err)
		}
		if _, err := Parse(a.String()); err != nil {
			t.Fatalf("%.40q: canonical form does not parse back: %v", in, err)
		}
	}
	if p, err := FromFloat(math.MaxFloat64); err != nil {
		t.Fatalf("max float: %v", err)
	} else if _, err := Parse(p.String()); err != nil {
		t.Fatalf("max float price does not parse back: %v", err)
	}
}

func TestStringIsIdempotent(t *testing.T) {
	for _, s := range []string{"0", "1", "1.2500", "123456789012345678901234567890", "1" + strings.Repeat("0", 30)} {
		a := MustParse(s)
		again := MustParse(a.String())
		if again.String() != a.String() {
			t.Fatalf("%s: %s != %s", s, again, a)
		}
	}
}

func TestAddBeyondFloatPrecision(t *testing.T) {
	// 2^53 + 1 cannot be represented by a float64.
	a := MustParse("9007199254740993")
	b := MustParse("9007199254740993")
	if got := a.Add(b).String(); got != "18014398509481986" {
		t.Fatalf("got %s", got)
	}
	huge := MustParse("123456789012345678901234567890")
	if got := huge.Add(FromInt(10)).String(); got != "123456789012345678901234567900" {
		t.Fatalf("got %s", got)
	}
}

func TestSubNeverGoesNegative(t *testing.T) {
	got, err := FromInt(100).Sub(FromInt(25))
	if err != nil || got.String() != "75" {
		t.Fatalf("got %s err %v", got, err)
	}
	if _, err := FromInt(10).Sub(FromInt(11)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative error, got %v", err)
	}
}

func TestMulRateAndFloor(t *testing.T) {
	got := FromInt(10).MulRate(1.15).Floor()
	if got.String() != "11" {
		t.Fatalf("got %s", got)
	}
	if !FromInt(10).MulRate(-2).IsZero() {
		t.Fatalf("negative rate should yield zero")
	}
	if !FromInt(10).MulRate(math.NaN()).IsZero() {
		t.Fatalf("NaN rate should yield zero")
	}
}

func TestCompare(t *testing.T) {
	small := MustParse("9007199254740992")
	big := MustParse("9007199254740993")
	if !small.LessThan(big) || big.Cmp(small) != 1 || small.Cmp(small) != 0 {
		t.Fatalf("comparison lost precision")
	}
}

func TestFloat64IsApproximate(t *testing.T) {
	if got := FromInt(1234).Float64(); got != 1234 {
		t.Fatalf("got %v", got)
	}
	huge, err := New(decimal.New(1, 400))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := huge.Float64(); !math.IsInf(got, 1) && got < 1e308 {
		t.Fatalf("expected saturation, got %v", got)
	}
}

func TestJSONUsesStrings(t *testing.T) {
	raw, err := json.Marshal(struct {
		Balance Amount `json:"balance"`
	}{Balance: MustParse("18014398509481986")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"balance":"18014398509481986"}` {
		t.Fatalf("got %s", raw)
	}
	var out struct {
		Balance Amount `json:"balance"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Balance.String() != "18014398509481986" {
		t.Fatalf("got %s", out.Balance)
	}
}

func TestScan(t *testing.T) {
	var a Amount
	if err := a.Scan([]byte("42")); err != nil || a.String() != "42" {
		t.Fatalf("got %s err %v", a, err)
	}
	if err := a.Scan(nil); err != nil || !a.IsZero() {
		t.Fatalf("nil should scan as zero")
	}
	if err := a.Scan(3.5); err == nil {
		t.Fatalf("expected error for float64 source")
	}
}
