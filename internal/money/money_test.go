package money_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/money"
)

func TestRoundPayable_BankersRounding(t *testing.T) {
	type testCase struct {
		name string
		in   string
		want string
	}

	tests := []testCase{
		{name: "HalfDownToEven", in: "2.125", want: "2.12"},
		{name: "HalfUpToEven", in: "2.135", want: "2.14"},
		{name: "NoRoundingNeeded", in: "2.10", want: "2.1"},
		{name: "NegativeHalfToEven", in: "-2.125", want: "-2.12"},
		{name: "AboveHalf", in: "2.126", want: "2.13"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := money.MustParse(tt.in).RoundPayable()
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMulRate(t *testing.T) {
	base := money.MustParse("10000")
	rate := decimal.RequireFromString("2.5")

	got := base.MulRate(rate)
	assert.True(t, got.Equal(money.MustParse("250")), "got %s", got)
}

func TestArithmetic_SignedAmounts(t *testing.T) {
	a := money.MustParse("100.50")
	b := money.MustParse("-30.25")

	assert.Equal(t, "70.25", a.Add(b).String())
	assert.Equal(t, "130.75", a.Sub(b).String())
	assert.True(t, b.IsNegative())
	assert.True(t, b.Neg().IsPositive())
	assert.True(t, money.Zero().IsZero())
}

func TestSumAndMin(t *testing.T) {
	sum := money.Sum(money.FromInt(1), money.FromInt(2), money.MustParse("3.5"))
	assert.Equal(t, "6.5", sum.String())

	assert.True(t, money.Min(money.FromInt(3), money.FromInt(7)).Equal(money.FromInt(3)))
	assert.True(t, money.Min(money.MustParse("-5"), money.FromInt(0)).IsNegative())
}

func TestFromString_Invalid(t *testing.T) {
	_, err := money.FromString("not-a-number")
	assert.Error(t, err)
}

func TestJSON_DecimalString(t *testing.T) {
	b, err := json.Marshal(money.MustParse("1234.56"))
	require.NoError(t, err)
	assert.Equal(t, `"1234.56"`, string(b))

	var m money.Money
	require.NoError(t, json.Unmarshal([]byte(`"99.990001"`), &m))
	assert.Equal(t, "99.990001", m.String())
}

func TestScan_RoundTrip(t *testing.T) {
	var m money.Money
	require.NoError(t, m.Scan([]byte("42.42")))
	assert.Equal(t, "42.42", m.String())

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "42.42", v)
}
