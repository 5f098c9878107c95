package rule_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
	"github.com/RFarrand/commis/internal/vat"
)

func contrib(amount string) *contribution.Contribution {
	fundID := uuid.New()

	return &contribution.Contribution{
		ID:         uuid.New(),
		InvestorID: uuid.New(),
		FundID:     &fundID,
		Amount:     money.MustParse(amount),
		Currency:   "EUR",
		Date:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
	}
}

func sealed(t *testing.T, r *rule.Rule) *rule.Rule {
	t.Helper()
	require.NoError(t, r.Seal())

	return r
}

func exemptCtx(rules ...*rule.Rule) rule.Context {
	return rule.Context{Rules: rules, VATMode: vat.ModeExempt}
}

func applied(t *testing.T, outcomes []rule.Outcome, ruleID uuid.UUID) *rule.FeeLine {
	t.Helper()

	for _, o := range outcomes {
		if o.RuleID == ruleID {
			require.Equal(t, rule.OutcomeApplied, o.Status, "reason: %s", o.Reason)
			require.NotNil(t, o.Line)

			return o.Line
		}
	}

	t.Fatalf("no outcome for rule %s", ruleID)

	return nil
}

func TestEvaluate_Percentage(t *testing.T) {
	r := baseRule(rule.VariantPercentage)
	r.ID = uuid.New()
	r.RatePercent = dec("2.5")
	sealed(t, r)

	outcomes := rule.Evaluate(contrib("10000"), exemptCtx(r))

	line := applied(t, outcomes, r.ID)
	assert.Equal(t, "250", line.Net.String())
	assert.True(t, line.VAT.IsZero())
	assert.Equal(t, "250", line.Gross.String())
}

func TestEvaluate_FixedAmount(t *testing.T) {
	r := baseRule(rule.VariantFixedAmount)
	r.ID = uuid.New()
	r.FixedAmount = dec("150")
	sealed(t, r)

	line := applied(t, rule.Evaluate(contrib("999"), exemptCtx(r)), r.ID)
	assert.Equal(t, "150", line.Net.String())
}

func TestEvaluate_Tiered(t *testing.T) {
	r := baseRule(rule.VariantTiered)
	r.ID = uuid.New()
	r.Tiers = []rule.Tier{
		{Min: decimal.Zero, Max: dec("10000"), RatePercent: dec("3")},
		{Min: *dec("10000"), Max: dec("50000"), RatePercent: dec("2")},
		{Min: *dec("50000"), RatePercent: dec("1")},
	}
	sealed(t, r)

	type testCase struct {
		name     string
		amount   string
		wantNet  string
		wantTier int
	}

	tests := []testCase{
		{name: "FirstTier", amount: "5000", wantNet: "150", wantTier: 0},
		{name: "BoundaryGoesToHigherTier", amount: "10000", wantNet: "200", wantTier: 1},
		{name: "MiddleTier", amount: "30000", wantNet: "600", wantTier: 1},
		{name: "OpenEndedTop", amount: "100000", wantNet: "1000", wantTier: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := applied(t, rule.Evaluate(contrib(tt.amount), exemptCtx(r)), r.ID)
			assert.Equal(t, tt.wantNet, line.Net.String())
			require.NotNil(t, line.AppliedTier)
			assert.Equal(t, tt.wantTier, *line.AppliedTier)
		})
	}
}

func TestEvaluate_Hybrid(t *testing.T) {
	r := baseRule(rule.VariantHybrid)
	r.ID = uuid.New()
	r.FixedAmount = dec("100")
	r.RatePercent = dec("2")
	r.Threshold = dec("5000")
	sealed(t, r)

	// 100 fixed + 2% of (8000 - 5000).
	line := applied(t, rule.Evaluate(contrib("8000"), exemptCtx(r)), r.ID)
	assert.Equal(t, "160", line.Net.String())

	// Below the threshold only the fixed part applies.
	line = applied(t, rule.Evaluate(contrib("3000"), exemptCtx(r)), r.ID)
	assert.Equal(t, "100", line.Net.String())
}

func TestEvaluate_ConditionalMatchesFields(t *testing.T) {
	r := baseRule(rule.VariantConditional)
	r.ID = uuid.New()
	r.RatePercent = dec("5")
	r.Groups = []rule.ConditionGroup{
		{Conditions: []rule.Condition{
			{Field: "amount", Op: rule.OpGte, Value: "10000"},
			{Field: "currency", Op: rule.OpEq, Value: "EUR"},
		}},
	}
	sealed(t, r)

	line := applied(t, rule.Evaluate(contrib("10000"), exemptCtx(r)), r.ID)
	assert.Equal(t, "500", line.Net.String())

	// Numeric comparison, not lexical: 9999 < 10000.
	outcomes := rule.Evaluate(contrib("9999"), exemptCtx(r))
	require.Len(t, outcomes, 1)
	assert.Equal(t, rule.OutcomeNotApplicable, outcomes[0].Status)
}

func TestEvaluate_ConditionGroupsAreORed(t *testing.T) {
	r := baseRule(rule.VariantConditional)
	r.ID = uuid.New()
	r.RatePercent = dec("1")
	r.Groups = []rule.ConditionGroup{
		{Conditions: []rule.Condition{{Field: "currency", Op: rule.OpEq, Value: "USD"}}},
		{Conditions: []rule.Condition{{Field: "scope", Op: rule.OpEq, Value: "FUND"}}},
	}
	sealed(t, r)

	// The first group fails (EUR), the second matches (fund-scoped).
	line := applied(t, rule.Evaluate(contrib("100"), exemptCtx(r)), r.ID)
	assert.Equal(t, "1", line.Net.String())
}

func TestEvaluate_ManagementFeeUsesAggregate(t *testing.T) {
	r := baseRule(rule.VariantManagementFee)
	r.ID = uuid.New()
	r.RatePercent = dec("0.5")
	r.Basis = rule.BasisAnnual
	sealed(t, r)

	ctx := exemptCtx(r)
	ctx.Aggregates = map[rule.Basis]money.Money{rule.BasisAnnual: money.MustParse("200000")}

	line := applied(t, rule.Evaluate(contrib("100"), ctx), r.ID)
	assert.Equal(t, "1000", line.Net.String())
	assert.Equal(t, "200000", line.Base.String())
}

func TestEvaluate_ManagementFeeMissingAggregateIsError(t *testing.T) {
	r := baseRule(rule.VariantManagementFee)
	r.ID = uuid.New()
	r.RatePercent = dec("0.5")
	r.Basis = rule.BasisAnnual
	sealed(t, r)

	outcomes := rule.Evaluate(contrib("100"), exemptCtx(r))
	require.Len(t, outcomes, 1)
	assert.Equal(t, rule.OutcomeError, outcomes[0].Status)
}

func TestEvaluate_Discount(t *testing.T) {
	r := baseRule(rule.VariantDiscount)
	r.ID = uuid.New()
	r.RatePercent = dec("1")
	sealed(t, r)

	line := applied(t, rule.Evaluate(contrib("10000"), exemptCtx(r)), r.ID)
	assert.Equal(t, "-100", line.Net.String())
	assert.True(t, line.Net.IsNegative())
}

func TestEvaluate_CreditNettingCappedByAvailableCredit(t *testing.T) {
	r := baseRule(rule.VariantCreditNetting)
	r.ID = uuid.New()
	r.RatePercent = dec("100")
	sealed(t, r)

	ctx := exemptCtx(r)
	ctx.Credits = []*credit.Credit{
		{Scope: credit.ScopeFund, Currency: "EUR", Remaining: money.MustParse("300"), Status: credit.StatusActive},
		{Scope: credit.ScopeDeal, Currency: "EUR", Remaining: money.MustParse("900"), Status: credit.StatusActive},
		{Scope: credit.ScopeFund, Currency: "EUR", Remaining: money.MustParse("50"), Status: credit.StatusVoided},
	}

	// Fund-scoped contribution: only the active fund credit counts, so
	// the offset is capped at 300 even though the candidate is 1000.
	line := applied(t, rule.Evaluate(contrib("1000"), ctx), r.ID)
	assert.Equal(t, "-300", line.Net.String())
}

func TestEvaluate_SubAgentSplit(t *testing.T) {
	parent := baseRule(rule.VariantPercentage)
	parent.ID = uuid.New()
	parent.RatePercent = dec("2")
	parent.Combinable = true
	sealed(t, parent)

	split := baseRule(rule.VariantSubAgentSplit)
	split.ID = uuid.New()
	split.RatePercent = dec("50")
	split.RefRuleID = &parent.ID
	split.Combinable = true
	sealed(t, split)

	outcomes := rule.Evaluate(contrib("10000"), exemptCtx(parent, split))

	assert.Equal(t, "200", applied(t, outcomes, parent.ID).Net.String())
	// Half of the referenced rule's amount.
	assert.Equal(t, "100", applied(t, outcomes, split.ID).Net.String())
}

func TestEvaluate_SubAgentSplitCycle(t *testing.T) {
	a := baseRule(rule.VariantSubAgentSplit)
	a.ID = uuid.New()
	b := baseRule(rule.VariantSubAgentSplit)
	b.ID = uuid.New()

	a.RatePercent = dec("50")
	a.RefRuleID = &b.ID
	a.Combinable = true
	b.RatePercent = dec("50")
	b.RefRuleID = &a.ID
	b.Combinable = true
	sealed(t, a)
	sealed(t, b)

	outcomes := rule.Evaluate(contrib("10000"), exemptCtx(a, b))
	require.Len(t, outcomes, 2)

	for _, o := range outcomes {
		assert.Equal(t, rule.OutcomeError, o.Status)
		assert.Contains(t, o.Reason, rule.ErrRuleCycle.Error())
	}
}

func TestEvaluate_PriorityAndCombinability(t *testing.T) {
	winner := baseRule(rule.VariantPercentage)
	winner.ID = uuid.New()
	winner.Priority = 10
	winner.RatePercent = dec("2")
	sealed(t, winner)

	loser := baseRule(rule.VariantPercentage)
	loser.ID = uuid.New()
	loser.Priority = 20
	loser.RatePercent = dec("5")
	sealed(t, loser)

	stacker := baseRule(rule.VariantDiscount)
	stacker.ID = uuid.New()
	stacker.Priority = 30
	stacker.RatePercent = dec("1")
	stacker.Combinable = true
	sealed(t, stacker)

	outcomes := rule.Evaluate(contrib("10000"), exemptCtx(loser, stacker, winner))
	require.Len(t, outcomes, 3)

	assert.Equal(t, "200", applied(t, outcomes, winner.ID).Net.String())
	assert.Equal(t, "-100", applied(t, outcomes, stacker.ID).Net.String())

	for _, o := range outcomes {
		if o.RuleID == loser.ID {
			assert.Equal(t, rule.OutcomeSkipped, o.Status)
		}
	}
}

func TestEvaluate_EqualPriorityBreaksByRuleID(t *testing.T) {
	a := baseRule(rule.VariantPercentage)
	b := baseRule(rule.VariantPercentage)
	a.RatePercent = dec("1")
	b.RatePercent = dec("2")

	// Force a deterministic ID ordering.
	a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b.ID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	sealed(t, a)
	sealed(t, b)

	outcomes := rule.Evaluate(contrib("100"), exemptCtx(b, a))

	assert.Equal(t, rule.OutcomeApplied, outcomes[0].Status)
	assert.Equal(t, a.ID, outcomes[0].RuleID)
	assert.Equal(t, rule.OutcomeSkipped, outcomes[1].Status)
	assert.Equal(t, b.ID, outcomes[1].RuleID)
}

func TestEvaluate_InactiveAndExpiredRulesIgnored(t *testing.T) {
	inactive := baseRule(rule.VariantPercentage)
	inactive.ID = uuid.New()
	inactive.RatePercent = dec("1")
	inactive.Active = false
	sealed(t, inactive)

	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	expired := baseRule(rule.VariantPercentage)
	expired.ID = uuid.New()
	expired.RatePercent = dec("1")
	expired.EffectiveTo = &to
	sealed(t, expired)

	outcomes := rule.Evaluate(contrib("100"), exemptCtx(inactive, expired))
	assert.Empty(t, outcomes)
}

func TestEvaluate_VATAddedOnCommission(t *testing.T) {
	r := baseRule(rule.VariantPercentage)
	r.ID = uuid.New()
	r.RatePercent = dec("10")
	sealed(t, r)

	ctx := rule.Context{
		Rules:      []*rule.Rule{r},
		VATMode:    vat.ModeAdded,
		VATCountry: "PT",
		VATRates: []vat.Rate{
			{Country: "PT", Percent: decimal.RequireFromString("23"), EffectiveFrom: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}

	line := applied(t, rule.Evaluate(contrib("1000"), ctx), r.ID)
	assert.Equal(t, "100", line.Net.String())
	assert.Equal(t, "23", line.VAT.String())
	assert.Equal(t, "123", line.Gross.String())
	require.NotNil(t, line.VATSnapshot)
	assert.Equal(t, "PT", line.VATSnapshot.Country)
	assert.Equal(t, vat.ModeAdded, line.VATSnapshot.Mode)
}

func TestEvaluate_MissingVATRateIsError(t *testing.T) {
	r := baseRule(rule.VariantPercentage)
	r.ID = uuid.New()
	r.RatePercent = dec("10")
	sealed(t, r)

	ctx := rule.Context{Rules: []*rule.Rule{r}, VATMode: vat.ModeAdded, VATCountry: "FR"}

	outcomes := rule.Evaluate(contrib("1000"), ctx)
	require.Len(t, outcomes, 1)
	assert.Equal(t, rule.OutcomeError, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Reason, vat.ErrNoRate.Error())
}
