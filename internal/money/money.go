package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scales used across the engine. Payable amounts are rounded to cents;
// intermediate results keep six places so repeated summation does not
// accumulate bias.
const (
	PayableScale = 2
	CalcScale    = 6
)

// Money is a signed, arbitrary-precision monetary amount. The zero value
// is zero money and is ready to use. All rounding is banker's rounding
// (round half to even).
type Money struct {
	d decimal.Decimal
}

func Zero() Money {
	return Money{}
}

func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

func FromInt(n int64) Money {
	return Money{d: decimal.NewFromInt(n)}
}

func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}

	return Money{d: d}, nil
}

// MustParse is for constants in tests and fixtures.
func MustParse(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}

	return m
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// Mul keeps calculation precision; callers round at the payable boundary.
func (m Money) Mul(o Money) Money {
	return Money{d: m.d.Mul(o.d).RoundBank(CalcScale)}
}

func (m Money) Div(o Money) Money {
	return Money{d: m.d.DivRound(o.d, CalcScale+2).RoundBank(CalcScale)}
}

// MulRate multiplies by a percentage expressed as e.g. 2.5 for 2.5%.
func (m Money) MulRate(pct decimal.Decimal) Money {
	return Money{d: m.d.Mul(pct).Div(decimal.NewFromInt(100)).RoundBank(CalcScale)}
}

// RoundPayable rounds to the payable scale (2 dp, half to even).
func (m Money) RoundPayable() Money {
	return Money{d: m.d.RoundBank(PayableScale)}
}

// RoundCalc rounds to the intermediate calculation scale (6 dp).
func (m Money) RoundCalc() Money {
	return Money{d: m.d.RoundBank(CalcScale)}
}

func (m Money) IsZero() bool     { return m.d.IsZero() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }

func (m Money) Cmp(o Money) int      { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool   { return m.d.Equal(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }

func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}

	return b
}

func Sum(ms ...Money) Money {
	var total Money
	for _, m := range ms {
		total = total.Add(m)
	}

	return total
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) String() string { return m.d.String() }

// Value implements driver.Valuer so Money columns round-trip as numerics.
func (m Money) Value() (driver.Value, error) {
	return m.d.String(), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		m.d = decimal.Decimal{}
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("scanning money %q: %w", v, err)
		}
		m.d = d
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return fmt.Errorf("scanning money %q: %w", v, err)
		}
		m.d = d
		return nil
	case int64:
		m.d = decimal.NewFromInt(v)
		return nil
	case float64:
		m.d = decimal.NewFromFloat(v)
		return nil
	default:
		return fmt.Errorf("scanning money: unsupported type %T", src)
	}
}

// JSON representation is a decimal string, never a float.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.d.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parsing money %q: %w", s, err)
	}

	m.d = d

	return nil
}
