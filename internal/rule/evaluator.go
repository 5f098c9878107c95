package rule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/vat"
)

// Context carries everything one contribution is evaluated against.
type Context struct {
	Rules      []*Rule
	VATMode    vat.Mode
	VATCountry string
	VATRates   []vat.Rate

	// Outstanding credits of the contribution's investor, consulted by
	// credit_netting rules for available balance. The actual ledger
	// write happens at submission, not here.
	Credits []*credit.Credit

	// Historical volume aggregates per basis, supplied by the caller
	// for management_fee / promote_share rules.
	Aggregates map[Basis]money.Money

	// Named fields conditions predicate over, merged with the
	// contribution's builtin fields.
	Fields map[string]string
}

// OutcomeStatus tags each rule's execution result. Everything is
// retained for audit replay, including the rules that did not fire.
type OutcomeStatus string

const (
	OutcomeApplied       OutcomeStatus = "applied"
	OutcomeNotApplicable OutcomeStatus = "not_applicable"
	OutcomeSkipped       OutcomeStatus = "skipped"
	OutcomeError         OutcomeStatus = "error"
)

type Outcome struct {
	RuleID   uuid.UUID
	Checksum string
	Status   OutcomeStatus
	Reason   string
	Line     *FeeLine
}

// Evaluate runs every active, in-effect rule against one contribution.
// Rules are visited by ascending priority, ties broken by rule ID so
// the order is deterministic. Once a non-combinable rule has applied,
// later non-combinable matches are recorded as skipped; combinable
// rules stack regardless.
func Evaluate(contrib *contribution.Contribution, ctx Context) []Outcome {
	candidates := make([]*Rule, 0, len(ctx.Rules))
	for _, r := range ctx.Rules {
		if r.Active && r.InEffect(contrib.Date) {
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority == candidates[j].Priority {
			return candidates[i].ID.String() < candidates[j].ID.String()
		}

		return candidates[i].Priority < candidates[j].Priority
	})

	byID := make(map[uuid.UUID]*Rule, len(ctx.Rules))
	for _, r := range ctx.Rules {
		byID[r.ID] = r
	}

	ev := &evaluator{contrib: contrib, ctx: ctx, byID: byID}

	fields := ev.fields()
	outcomes := make([]Outcome, 0, len(candidates))
	haveWinner := false

	for _, r := range candidates {
		if !matches(r.Groups, fields) {
			outcomes = append(outcomes, Outcome{
				RuleID:   r.ID,
				Checksum: r.Checksum,
				Status:   OutcomeNotApplicable,
				Reason:   ErrNotApplicable.Error(),
			})

			continue
		}

		if haveWinner && !r.Combinable {
			outcomes = append(outcomes, Outcome{
				RuleID:   r.ID,
				Checksum: r.Checksum,
				Status:   OutcomeSkipped,
				Reason:   "superseded by a higher-priority rule",
			})

			continue
		}

		line, err := ev.compute(r)
		if err != nil {
			outcomes = append(outcomes, Outcome{
				RuleID:   r.ID,
				Checksum: r.Checksum,
				Status:   OutcomeError,
				Reason:   err.Error(),
			})

			continue
		}

		outcomes = append(outcomes, Outcome{
			RuleID:   r.ID,
			Checksum: r.Checksum,
			Status:   OutcomeApplied,
			Line:     line,
		})

		if !r.Combinable {
			haveWinner = true
		}
	}

	return outcomes
}

type evaluator struct {
	contrib *contribution.Contribution
	ctx     Context
	byID    map[uuid.UUID]*Rule
}

// fields merges the contribution's builtin fields with caller-supplied
// ones. Caller fields win on collision.
func (ev *evaluator) fields() map[string]string {
	f := map[string]string{
		"amount":      ev.contrib.Amount.String(),
		"currency":    ev.contrib.Currency,
		"scope":       ev.contrib.Scope(),
		"investor_id": ev.contrib.InvestorID.String(),
		"date":        ev.contrib.Date.Format("2006-01-02"),
	}
	for k, v := range ev.ctx.Fields {
		f[k] = v
	}

	return f
}

func (ev *evaluator) compute(r *Rule) (*FeeLine, error) {
	amount, base, appliedRate, appliedTier, err := ev.amount(r, map[uuid.UUID]bool{})
	if err != nil {
		return nil, err
	}

	line := &FeeLine{
		ContributionID: ev.contrib.ID,
		RuleID:         r.ID,
		RuleChecksum:   r.Checksum,
		Variant:        r.Variant,
		Method:         string(r.Variant),
		Scope:          ev.contrib.Scope(),
		Base:           base,
		AppliedRate:    appliedRate,
		AppliedTier:    appliedTier,
	}

	mode := ev.ctx.VATMode
	if mode == "" {
		mode = vat.ModeExempt
	}

	if mode == vat.ModeExempt {
		line.Net = amount.RoundPayable()
		line.VAT = money.Zero()
		line.Gross = line.Net

		return line, nil
	}

	rate, err := vat.Resolve(ev.ctx.VATRates, ev.ctx.VATCountry, ev.contrib.Date)
	if err != nil {
		return nil, err
	}

	b := vat.Apply(amount, rate.Percent, mode)
	line.Net = b.Net.RoundPayable()
	line.VAT = b.VAT.RoundPayable()
	line.Gross = line.Net.Add(line.VAT)
	line.VATSnapshot = &vat.Snapshot{
		Country:   rate.Country,
		Percent:   rate.Percent,
		Mode:      mode,
		Inclusive: mode == vat.ModeIncluded,
	}

	return line, nil
}

// amount computes the pre-VAT result of one rule. The visited set
// guards sub_agent_split reference chains against cycles.
func (ev *evaluator) amount(r *Rule, visited map[uuid.UUID]bool) (amount, base money.Money, appliedRate *decimal.Decimal, appliedTier *int, err error) {
	base = ev.contrib.Amount

	switch r.Variant {
	case VariantPercentage, VariantConditional:
		if r.RatePercent != nil {
			return base.MulRate(*r.RatePercent), base, r.RatePercent, nil, nil
		}

		return money.FromDecimal(*r.FixedAmount), base, nil, nil, nil

	case VariantFixedAmount:
		return money.FromDecimal(*r.FixedAmount), base, nil, nil, nil

	case VariantTiered:
		t, idx, ok := matchTier(r.Tiers, base.Decimal())
		if !ok {
			return money.Money{}, base, nil, nil, fmt.Errorf("no tier matches base %s", base)
		}

		if t.RatePercent != nil {
			return base.MulRate(*t.RatePercent), base, t.RatePercent, &idx, nil
		}

		return money.FromDecimal(*t.FixedAmount), base, nil, &idx, nil

	case VariantHybrid:
		excess := base
		if r.Threshold != nil {
			excess = base.Sub(money.FromDecimal(*r.Threshold))
			if excess.IsNegative() {
				excess = money.Zero()
			}
		}

		fixed := money.FromDecimal(*r.FixedAmount)

		return fixed.Add(excess.MulRate(*r.RatePercent)), base, r.RatePercent, nil, nil

	case VariantManagementFee, VariantPromoteShare:
		agg, ok := ev.ctx.Aggregates[r.Basis]
		if !ok {
			return money.Money{}, base, nil, nil, fmt.Errorf("context missing %s aggregate", r.Basis)
		}

		return agg.MulRate(*r.RatePercent), agg, r.RatePercent, nil, nil

	case VariantDiscount:
		if r.RatePercent != nil {
			return base.MulRate(*r.RatePercent).Neg(), base, r.RatePercent, nil, nil
		}

		return money.FromDecimal(*r.FixedAmount).Neg(), base, nil, nil, nil

	case VariantCreditNetting:
		candidate := base
		if r.RatePercent != nil {
			candidate = base.MulRate(*r.RatePercent)
		} else if r.FixedAmount != nil {
			candidate = money.FromDecimal(*r.FixedAmount)
		}

		offset := money.Min(candidate, ev.availableCredit())

		return offset.Neg(), base, r.RatePercent, nil, nil

	case VariantSubAgentSplit:
		refGross, err := ev.referencedAmount(r, visited)
		if err != nil {
			return money.Money{}, base, nil, nil, err
		}

		return refGross.MulRate(*r.RatePercent), refGross, r.RatePercent, nil, nil

	default:
		return money.Money{}, base, nil, nil, fmt.Errorf("unknown rule variant %q", r.Variant)
	}
}

// referencedAmount resolves the gross the split percentage applies to.
func (ev *evaluator) referencedAmount(r *Rule, visited map[uuid.UUID]bool) (money.Money, error) {
	if visited[r.ID] {
		return money.Money{}, fmt.Errorf("%w: via rule %s", ErrRuleCycle, r.ID)
	}

	visited[r.ID] = true

	ref, ok := ev.byID[*r.RefRuleID]
	if !ok {
		return money.Money{}, fmt.Errorf("referenced rule %s not in context", r.RefRuleID)
	}

	if visited[ref.ID] {
		return money.Money{}, fmt.Errorf("%w: via rule %s", ErrRuleCycle, ref.ID)
	}

	amount, _, _, _, err := ev.amount(ref, visited)
	if err != nil {
		if errors.Is(err, ErrRuleCycle) {
			return money.Money{}, err
		}

		return money.Money{}, fmt.Errorf("resolving referenced rule %s: %w", ref.ID, err)
	}

	return amount, nil
}

func (ev *evaluator) availableCredit() money.Money {
	var total money.Money

	scope := credit.Scope(ev.contrib.Scope())
	for _, c := range ev.ctx.Credits {
		if c.Status != credit.StatusActive {
			continue
		}

		if c.Scope != scope || c.Currency != ev.contrib.Currency {
			continue
		}

		total = total.Add(c.Remaining)
	}

	return total
}
