package vat_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/vat"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ratePtr(t time.Time) *time.Time { return &t }

func TestResolve(t *testing.T) {
	rates := []vat.Rate{
		{Country: "PT", Percent: decimal.RequireFromString("21"), EffectiveFrom: date(2020, 1, 1), EffectiveTo: ratePtr(date(2024, 1, 1))},
		{Country: "PT", Percent: decimal.RequireFromString("23"), EffectiveFrom: date(2024, 1, 1)},
		{Country: "DE", Percent: decimal.RequireFromString("19"), EffectiveFrom: date(2020, 1, 1)},
	}

	type testCase struct {
		name        string
		country     string
		asOf        time.Time
		wantPercent string
		wantErr     bool
	}

	tests := []testCase{
		{name: "OldRate", country: "PT", asOf: date(2023, 6, 1), wantPercent: "21"},
		{name: "BoundaryBelongsToNewRate", country: "PT", asOf: date(2024, 1, 1), wantPercent: "23"},
		{name: "OpenEnded", country: "PT", asOf: date(2030, 1, 1), wantPercent: "23"},
		{name: "OtherCountry", country: "DE", asOf: date(2023, 6, 1), wantPercent: "19"},
		{name: "BeforeAnyRate", country: "PT", asOf: date(2019, 1, 1), wantErr: true},
		{name: "UnknownCountry", country: "FR", asOf: date(2023, 6, 1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vat.Resolve(rates, tt.country, tt.asOf)
			if tt.wantErr {
				assert.ErrorIs(t, err, vat.ErrNoRate)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPercent, got.Percent.String())
		})
	}
}

func TestValidateRates(t *testing.T) {
	type testCase struct {
		name    string
		rates   []vat.Rate
		wantErr bool
	}

	tests := []testCase{
		{
			name: "Valid",
			rates: []vat.Rate{
				{Country: "PT", EffectiveFrom: date(2020, 1, 1), EffectiveTo: ratePtr(date(2024, 1, 1))},
				{Country: "PT", EffectiveFrom: date(2024, 1, 1)},
			},
		},
		{
			name: "TwoOpenEnded",
			rates: []vat.Rate{
				{Country: "PT", EffectiveFrom: date(2020, 1, 1)},
				{Country: "PT", EffectiveFrom: date(2024, 1, 1)},
			},
			wantErr: true,
		},
		{
			name: "Overlap",
			rates: []vat.Rate{
				{Country: "PT", EffectiveFrom: date(2020, 1, 1), EffectiveTo: ratePtr(date(2024, 6, 1))},
				{Country: "PT", EffectiveFrom: date(2024, 1, 1)},
			},
			wantErr: true,
		},
		{
			name: "SeparateCountriesNeverOverlap",
			rates: []vat.Rate{
				{Country: "PT", EffectiveFrom: date(2020, 1, 1)},
				{Country: "DE", EffectiveFrom: date(2020, 1, 1)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := vat.ValidateRates(tt.rates)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestApply_Added(t *testing.T) {
	b := vat.Apply(money.MustParse("100"), decimal.RequireFromString("23"), vat.ModeAdded)

	assert.Equal(t, "100", b.Net.String())
	assert.Equal(t, "23", b.VAT.String())
	assert.Equal(t, "123", b.Gross.String())
}

func TestApply_Included(t *testing.T) {
	b := vat.Apply(money.MustParse("123"), decimal.RequireFromString("23"), vat.ModeIncluded)

	assert.Equal(t, "123", b.Gross.String())
	assert.Equal(t, "100", b.Net.RoundPayable().String())
	assert.Equal(t, "23", b.VAT.RoundPayable().String())
}

func TestApply_Exempt(t *testing.T) {
	b := vat.Apply(money.MustParse("100"), decimal.Zero, vat.ModeExempt)

	assert.Equal(t, "100", b.Net.String())
	assert.True(t, b.VAT.IsZero())
	assert.Equal(t, "100", b.Gross.String())
}

// Backing VAT out of a gross computed by adding VAT recovers the net
// within payable rounding.
func TestApply_RoundTrip(t *testing.T) {
	pct := decimal.RequireFromString("19")

	for _, amount := range []string{"0.01", "1", "99.99", "1234.56", "1000000"} {
		net := money.MustParse(amount)
		added := vat.Apply(net, pct, vat.ModeAdded)
		backedOut := vat.Apply(added.Gross, pct, vat.ModeIncluded)

		assert.Equal(t, net.RoundPayable().String(), backedOut.Net.RoundPayable().String(), "amount %s", amount)
	}
}
