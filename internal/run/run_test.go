package run_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
	"github.com/RFarrand/commis/internal/run"
)

func fundContribution(amount string, day int) *contribution.Contribution {
	fundID := uuid.New()

	return &contribution.Contribution{
		ID:         uuid.New(),
		InvestorID: uuid.New(),
		FundID:     &fundID,
		Amount:     money.MustParse(amount),
		Currency:   "EUR",
		Date:       time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
	}
}

func appliedOutcome(scope, net, vatAmount string) rule.Outcome {
	netM := money.MustParse(net)
	vatM := money.MustParse(vatAmount)

	return rule.Outcome{
		RuleID: uuid.New(),
		Status: rule.OutcomeApplied,
		Line: &rule.FeeLine{
			ID:    uuid.New(),
			Scope: scope,
			Net:   netM,
			VAT:   vatM,
			Gross: netM.Add(vatM),
		},
	}
}

func sealedPercentage(t *testing.T, version int) *rule.Rule {
	t.Helper()

	pct := decimal.RequireFromString("2")
	r := &rule.Rule{
		ID:            uuid.New(),
		Name:          "fund placement",
		Variant:       rule.VariantPercentage,
		RatePercent:   &pct,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Version:       version,
		Active:        true,
	}
	require.NoError(t, r.Seal())

	return r
}

func TestAggregate_SignedTotalsAndScopeBreakdown(t *testing.T) {
	inputs := []run.Input{
		{Contribution: fundContribution("10000", 1), Outcomes: []rule.Outcome{
			appliedOutcome("FUND", "200", "46"),
			appliedOutcome("FUND", "-50", "0"),
			{RuleID: uuid.New(), Status: rule.OutcomeSkipped},
		}},
		{Contribution: fundContribution("5000", 2), Outcomes: []rule.Outcome{
			appliedOutcome("DEAL", "100", "23"),
		}},
	}

	r, err := run.Aggregate(uuid.New(), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), nil, inputs, run.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, run.StatusDraft, r.Status)
	assert.Len(t, r.Lines, 3)
	assert.Len(t, r.Outcomes, 4)

	assert.Equal(t, "250", r.TotalNet.String())
	assert.Equal(t, "69", r.TotalVAT.String())
	assert.Equal(t, "319", r.TotalGross.String())

	assert.Equal(t, "150", r.ScopeNet["FUND"].String())
	assert.Equal(t, "100", r.ScopeNet["DEAL"].String())
}

func TestAggregate_RulesetIdentity(t *testing.T) {
	a := sealedPercentage(t, 1)
	b := sealedPercentage(t, 3)

	r, err := run.Aggregate(uuid.New(), time.Now(), time.Now().Add(time.Hour),
		[]*rule.Rule{a, b}, nil, run.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 3, r.RulesetVersion)
	assert.Len(t, r.RulesetChecksum, 64)
	assert.Len(t, r.Hash, 64)

	// Rule order must not matter. Same inputs, reversed ruleset.
	again, err := run.Aggregate(r.AgreementID, r.PeriodStart, r.PeriodEnd,
		[]*rule.Rule{b, a}, nil, r.Settings)
	require.NoError(t, err)
	assert.Equal(t, r.RulesetChecksum, again.RulesetChecksum)
}

func TestIntegrityHash_OrderIndependent(t *testing.T) {
	contribs := []*contribution.Contribution{
		fundContribution("100", 1),
		fundContribution("200", 2),
		fundContribution("300", 3),
	}
	settings := run.DefaultSettings()

	first, err := run.IntegrityHash(1, "abc", contribs, settings)
	require.NoError(t, err)

	permuted := []*contribution.Contribution{contribs[2], contribs[0], contribs[1]}

	second, err := run.IntegrityHash(1, "abc", permuted, settings)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIntegrityHash_SensitiveToInputs(t *testing.T) {
	contribs := []*contribution.Contribution{fundContribution("100", 1)}
	settings := run.DefaultSettings()

	base, err := run.IntegrityHash(1, "abc", contribs, settings)
	require.NoError(t, err)

	changedRuleset, err := run.IntegrityHash(1, "def", contribs, settings)
	require.NoError(t, err)
	assert.NotEqual(t, base, changedRuleset)

	changedSettings := settings
	changedSettings.PayableScale = 4

	reScaled, err := run.IntegrityHash(1, "abc", contribs, changedSettings)
	require.NoError(t, err)
	assert.NotEqual(t, base, reScaled)

	extra, err := run.IntegrityHash(1, "abc", append(contribs, fundContribution("5", 9)), settings)
	require.NoError(t, err)
	assert.NotEqual(t, base, extra)
}
