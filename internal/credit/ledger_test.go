package credit_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
)

func activeCredit(amount string, createdAt time.Time) *credit.Credit {
	m := money.MustParse(amount)

	return &credit.Credit{
		ID:         uuid.New(),
		InvestorID: uuid.New(),
		Scope:      credit.ScopeFund,
		Currency:   "EUR",
		Original:   m,
		Remaining:  m,
		Status:     credit.StatusActive,
		CreatedAt:  createdAt,
	}
}

func TestPlan_FIFOAcrossCredits(t *testing.T) {
	now := time.Now()
	older := activeCredit("600", now.Add(-48*time.Hour))
	newer := activeCredit("500", now.Add(-24*time.Hour))

	// Deliberately out of order; Plan sorts by creation date.
	plan := credit.Plan([]*credit.Credit{newer, older}, money.MustParse("1000"), credit.TargetCharge, uuid.New(), now)

	require.Len(t, plan.Applications, 2)
	assert.True(t, plan.Residual.IsZero(), "residual %s", plan.Residual)

	first, second := plan.Applications[0], plan.Applications[1]
	assert.Equal(t, older.ID, first.CreditID)
	assert.Equal(t, "600", first.Amount.String())
	assert.True(t, first.BalanceAfter.IsZero())

	assert.Equal(t, newer.ID, second.CreditID)
	assert.Equal(t, "400", second.Amount.String())
	assert.Equal(t, "100", second.BalanceAfter.String())

	assert.Equal(t, credit.StatusDepleted, older.Status)
	assert.Equal(t, credit.StatusActive, newer.Status)
	assert.Equal(t, "100", newer.Remaining.String())
	assert.Equal(t, "1000", plan.Applied().String())
}

func TestPlan_PartialNettingLeavesResidual(t *testing.T) {
	now := time.Now()
	c := activeCredit("300", now.Add(-time.Hour))

	plan := credit.Plan([]*credit.Credit{c}, money.MustParse("1000"), credit.TargetCharge, uuid.New(), now)

	require.Len(t, plan.Applications, 1)
	assert.Equal(t, "700", plan.Residual.String())
	assert.Equal(t, credit.StatusDepleted, c.Status)
}

func TestPlan_SkipsInactiveCredits(t *testing.T) {
	now := time.Now()
	voided := activeCredit("500", now.Add(-48*time.Hour))
	voided.Status = credit.StatusVoided
	active := activeCredit("500", now.Add(-24*time.Hour))

	plan := credit.Plan([]*credit.Credit{voided, active}, money.MustParse("400"), credit.TargetCharge, uuid.New(), now)

	require.Len(t, plan.Applications, 1)
	assert.Equal(t, active.ID, plan.Applications[0].CreditID)
	assert.Equal(t, "500", voided.Remaining.String())
}

func TestPlan_ZeroPayable(t *testing.T) {
	now := time.Now()
	c := activeCredit("500", now)

	plan := credit.Plan([]*credit.Credit{c}, money.Zero(), credit.TargetCharge, uuid.New(), now)

	assert.Empty(t, plan.Applications)
	assert.True(t, plan.Residual.IsZero())
	assert.Equal(t, "500", c.Remaining.String())
}

func TestReverse_RestoresExactAmounts(t *testing.T) {
	now := time.Now()
	older := activeCredit("600", now.Add(-48*time.Hour))
	newer := activeCredit("500", now.Add(-24*time.Hour))

	plan := credit.Plan([]*credit.Credit{older, newer}, money.MustParse("1000"), credit.TargetCharge, uuid.New(), now)
	require.Len(t, plan.Applications, 2)

	byID := map[uuid.UUID]*credit.Credit{older.ID: older, newer.ID: newer}

	reversed := credit.Reverse(byID, plan.Applications, now)
	require.Len(t, reversed, 2)

	assert.Equal(t, "600", older.Remaining.String())
	assert.Equal(t, "500", newer.Remaining.String())
	assert.Equal(t, credit.StatusActive, older.Status)

	for _, a := range reversed {
		assert.True(t, a.Reversed)
		require.NotNil(t, a.ReversedAt)
	}
}

func TestReverse_Idempotent(t *testing.T) {
	now := time.Now()
	c := activeCredit("600", now.Add(-time.Hour))

	plan := credit.Plan([]*credit.Credit{c}, money.MustParse("600"), credit.TargetCharge, uuid.New(), now)
	require.Len(t, plan.Applications, 1)

	byID := map[uuid.UUID]*credit.Credit{c.ID: c}

	first := credit.Reverse(byID, plan.Applications, now)
	require.Len(t, first, 1)
	assert.Equal(t, "600", c.Remaining.String())

	// Reversing the already-reversed applications must not double the
	// balance.
	second := credit.Reverse(byID, first, now)
	assert.Empty(t, second)
	assert.Equal(t, "600", c.Remaining.String())
}

// Conservation: consumed plus remaining always equals the original.
func TestPlan_Conservation(t *testing.T) {
	now := time.Now()
	credits := []*credit.Credit{
		activeCredit("123.45", now.Add(-3*time.Hour)),
		activeCredit("67.89", now.Add(-2*time.Hour)),
		activeCredit("1000", now.Add(-time.Hour)),
	}

	original := money.Sum(credits[0].Original, credits[1].Original, credits[2].Original)

	plan := credit.Plan(credits, money.MustParse("500"), credit.TargetCharge, uuid.New(), now)

	remaining := money.Sum(credits[0].Remaining, credits[1].Remaining, credits[2].Remaining)
	assert.True(t, original.Equal(remaining.Add(plan.Applied())),
		"original %s, remaining %s, applied %s", original, remaining, plan.Applied())
}
