package rule_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/rule"
	"github.com/RFarrand/commis/internal/workflow"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func baseRule(variant rule.Variant) *rule.Rule {
	return &rule.Rule{
		Name:          "test rule",
		Variant:       variant,
		Priority:      100,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       1,
		Active:        true,
	}
}

func TestComputeChecksum_ReferentialTransparency(t *testing.T) {
	r := baseRule(rule.VariantPercentage)
	r.RatePercent = dec("2.5")

	first, err := r.ComputeChecksum()
	require.NoError(t, err)

	second, err := r.ComputeChecksum()
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// A structurally identical rule hashes identically, regardless of
	// timestamps or identity.
	twin := baseRule(rule.VariantPercentage)
	twin.RatePercent = dec("2.5")
	twin.CreatedAt = time.Now()

	twinSum, err := twin.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, first, twinSum)
}

func TestSeal_ChangesOnMutation(t *testing.T) {
	r := baseRule(rule.VariantPercentage)
	r.RatePercent = dec("2.5")
	require.NoError(t, r.Seal())

	before := r.Checksum

	r.RatePercent = dec("3")
	require.NoError(t, r.Seal())

	assert.NotEqual(t, before, r.Checksum)
}

func TestInEffect(t *testing.T) {
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := baseRule(rule.VariantPercentage)
	r.EffectiveTo = &to

	assert.False(t, r.InEffect(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.InEffect(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, r.InEffect(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
	// Upper bound is exclusive.
	assert.False(t, r.InEffect(to))
}

func TestValidate(t *testing.T) {
	type testCase struct {
		name    string
		mutate  func(r *rule.Rule)
		variant rule.Variant
		wantErr bool
	}

	tests := []testCase{
		{
			name:    "PercentageNeedsRate",
			variant: rule.VariantPercentage,
			wantErr: true,
		},
		{
			name:    "PercentageWithRate",
			variant: rule.VariantPercentage,
			mutate:  func(r *rule.Rule) { r.RatePercent = dec("2.5") },
		},
		{
			name:    "HybridNeedsBoth",
			variant: rule.VariantHybrid,
			mutate:  func(r *rule.Rule) { r.RatePercent = dec("2.5") },
			wantErr: true,
		},
		{
			name:    "HybridComplete",
			variant: rule.VariantHybrid,
			mutate: func(r *rule.Rule) {
				r.RatePercent = dec("2.5")
				r.FixedAmount = dec("100")
			},
		},
		{
			name:    "SplitNeedsReference",
			variant: rule.VariantSubAgentSplit,
			mutate:  func(r *rule.Rule) { r.RatePercent = dec("50") },
			wantErr: true,
		},
		{
			name:    "ManagementFeeNeedsHistoricalBasis",
			variant: rule.VariantManagementFee,
			mutate: func(r *rule.Rule) {
				r.RatePercent = dec("1")
				r.Basis = rule.BasisEvent
			},
			wantErr: true,
		},
		{
			name:    "EmptyEffectiveRange",
			variant: rule.VariantFixedAmount,
			mutate: func(r *rule.Rule) {
				r.FixedAmount = dec("10")
				r.EffectiveTo = &r.EffectiveFrom
			},
			wantErr: true,
		},
		{
			name:    "UnknownVariant",
			variant: rule.Variant("mystery"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := baseRule(tt.variant)
			if tt.mutate != nil {
				tt.mutate(r)
			}

			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, workflow.ErrValidation)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestValidateTiers(t *testing.T) {
	type testCase struct {
		name    string
		tiers   []rule.Tier
		wantErr bool
	}

	tests := []testCase{
		{
			name: "Valid",
			tiers: []rule.Tier{
				{Min: decimal.Zero, Max: dec("10000"), RatePercent: dec("3")},
				{Min: *dec("10000"), Max: dec("50000"), RatePercent: dec("2")},
				{Min: *dec("50000"), RatePercent: dec("1")},
			},
		},
		{
			name:    "Empty",
			wantErr: true,
		},
		{
			name: "FirstNotZero",
			tiers: []rule.Tier{
				{Min: *dec("100"), RatePercent: dec("1")},
			},
			wantErr: true,
		},
		{
			name: "Gap",
			tiers: []rule.Tier{
				{Min: decimal.Zero, Max: dec("10000"), RatePercent: dec("3")},
				{Min: *dec("20000"), RatePercent: dec("1")},
			},
			wantErr: true,
		},
		{
			name: "TopNotOpenEnded",
			tiers: []rule.Tier{
				{Min: decimal.Zero, Max: dec("10000"), RatePercent: dec("3")},
			},
			wantErr: true,
		},
		{
			name: "TierWithoutRateOrFixed",
			tiers: []rule.Tier{
				{Min: decimal.Zero},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.ValidateTiers(tt.tiers)
			if tt.wantErr {
				assert.ErrorIs(t, err, workflow.ErrValidation)
				return
			}

			assert.NoError(t, err)
		})
	}
}
