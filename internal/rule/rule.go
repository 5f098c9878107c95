package rule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/canonical"
	"github.com/RFarrand/commis/internal/workflow"
)

var (
	ErrNotFound = errors.New("rule not found")

	// ErrNotApplicable is a recorded outcome, not a failure: the rule's
	// conditions did not match the contribution.
	ErrNotApplicable = errors.New("rule not applicable")

	// ErrRuleCycle aborts evaluation of a sub_agent_split rule whose
	// reference chain loops back on itself.
	ErrRuleCycle = errors.New("rule reference cycle")
)

// Variant tags the calculation a rule performs.
type Variant string

const (
	VariantPercentage    Variant = "percentage"
	VariantFixedAmount   Variant = "fixed_amount"
	VariantTiered        Variant = "tiered"
	VariantHybrid        Variant = "hybrid"
	VariantConditional   Variant = "conditional"
	VariantManagementFee Variant = "management_fee"
	VariantPromoteShare  Variant = "promote_share"
	VariantCreditNetting Variant = "credit_netting"
	VariantDiscount      Variant = "discount"
	VariantSubAgentSplit Variant = "sub_agent_split"
)

// Basis is the volume a percentage applies to. Everything except the
// single-event basis needs a matching historical aggregate in the
// calculation context.
type Basis string

const (
	BasisEvent      Basis = "event"
	BasisCumulative Basis = "cumulative"
	BasisMonthly    Basis = "monthly"
	BasisQuarterly  Basis = "quarterly"
	BasisAnnual     Basis = "annual"
)

// Operator compares a context field against a condition value.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Condition is one boolean predicate over a named context field.
type Condition struct {
	Field  string   `json:"field"`
	Op     Operator `json:"op"`
	Value  string   `json:"value"`
	Values []string `json:"values,omitempty"`
}

// ConditionGroup ANDs its conditions; groups on a rule are ORed.
type ConditionGroup struct {
	Conditions []Condition `json:"conditions"`
}

// Tier is one rung of a tier ladder. The lower bound is inclusive, the
// upper bound exclusive; a nil Max marks the open-ended top tier.
type Tier struct {
	Min         decimal.Decimal  `json:"min"`
	Max         *decimal.Decimal `json:"max,omitempty"`
	RatePercent *decimal.Decimal `json:"rate_percent,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
}

// Rule is one commission rule. Checksum is a pure function of the
// rule's own fields: two rules with identical fields hash identically,
// and every mutation must recompute it.
type Rule struct {
	ID          uuid.UUID
	Name        string
	Variant     Variant
	AgreementID *uuid.UUID
	Priority    int
	Combinable  bool

	RatePercent *decimal.Decimal
	FixedAmount *decimal.Decimal
	Threshold   *decimal.Decimal
	Basis       Basis
	RefRuleID   *uuid.UUID

	Groups []ConditionGroup
	Tiers  []Tier

	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Version       int
	Checksum      string
	Active        bool

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// checksumPayload pins down exactly which fields feed the checksum.
// Timestamps and the checksum itself are excluded.
type checksumPayload struct {
	Name          string           `json:"name"`
	Variant       Variant          `json:"variant"`
	AgreementID   *uuid.UUID       `json:"agreement_id"`
	Priority      int              `json:"priority"`
	Combinable    bool             `json:"combinable"`
	RatePercent   *decimal.Decimal `json:"rate_percent"`
	FixedAmount   *decimal.Decimal `json:"fixed_amount"`
	Threshold     *decimal.Decimal `json:"threshold"`
	Basis         Basis            `json:"basis"`
	RefRuleID     *uuid.UUID       `json:"ref_rule_id"`
	Groups        []ConditionGroup `json:"groups"`
	Tiers         []Tier           `json:"tiers"`
	EffectiveFrom string           `json:"effective_from"`
	EffectiveTo   *string          `json:"effective_to"`
	Version       int              `json:"version"`
}

// ComputeChecksum hashes the rule's content fields.
func (r *Rule) ComputeChecksum() (string, error) {
	p := checksumPayload{
		Name:          r.Name,
		Variant:       r.Variant,
		AgreementID:   r.AgreementID,
		Priority:      r.Priority,
		Combinable:    r.Combinable,
		RatePercent:   r.RatePercent,
		FixedAmount:   r.FixedAmount,
		Threshold:     r.Threshold,
		Basis:         r.Basis,
		RefRuleID:     r.RefRuleID,
		Groups:        r.Groups,
		Tiers:         r.Tiers,
		EffectiveFrom: r.EffectiveFrom.UTC().Format(time.RFC3339Nano),
		Version:       r.Version,
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.UTC().Format(time.RFC3339Nano)
		p.EffectiveTo = &s
	}

	return canonical.Hash(p)
}

// Seal recomputes and stores the checksum. Call it on every mutation.
func (r *Rule) Seal() error {
	sum, err := r.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("computing rule checksum: %w", err)
	}

	r.Checksum = sum

	return nil
}

// InEffect reports whether the rule's effective range contains at.
func (r *Rule) InEffect(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}

	return true
}

// Validate checks structural invariants per variant.
func (r *Rule) Validate() error {
	switch r.Variant {
	case VariantPercentage, VariantManagementFee, VariantPromoteShare, VariantSubAgentSplit:
		if r.RatePercent == nil {
			return fmt.Errorf("%w: %s rule needs a rate", workflow.ErrValidation, r.Variant)
		}
	case VariantFixedAmount:
		if r.FixedAmount == nil {
			return fmt.Errorf("%w: fixed_amount rule needs a fixed value", workflow.ErrValidation)
		}
	case VariantHybrid:
		if r.RatePercent == nil || r.FixedAmount == nil {
			return fmt.Errorf("%w: hybrid rule needs both a rate and a fixed value", workflow.ErrValidation)
		}
	case VariantTiered:
		if err := ValidateTiers(r.Tiers); err != nil {
			return err
		}
	case VariantConditional, VariantDiscount, VariantCreditNetting:
		if r.RatePercent == nil && r.FixedAmount == nil {
			return fmt.Errorf("%w: %s rule needs a rate or a fixed value", workflow.ErrValidation, r.Variant)
		}
	default:
		return fmt.Errorf("%w: unknown rule variant %q", workflow.ErrValidation, r.Variant)
	}

	if r.Variant == VariantSubAgentSplit && r.RefRuleID == nil {
		return fmt.Errorf("%w: sub_agent_split rule needs a referenced rule", workflow.ErrValidation)
	}

	if r.Variant == VariantManagementFee || r.Variant == VariantPromoteShare {
		switch r.Basis {
		case BasisCumulative, BasisMonthly, BasisQuarterly, BasisAnnual:
		default:
			return fmt.Errorf("%w: %s rule needs a historical basis", workflow.ErrValidation, r.Variant)
		}
	}

	if r.EffectiveTo != nil && !r.EffectiveFrom.Before(*r.EffectiveTo) {
		return fmt.Errorf("%w: effective range is empty", workflow.ErrValidation)
	}

	return nil
}

// ValidateTiers enforces that a ladder partitions [0, inf): first rung
// starts at zero, rungs are contiguous with inclusive lower bounds, and
// the top rung is open-ended.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: tiered rule needs at least one tier", workflow.ErrValidation)
	}

	if !tiers[0].Min.IsZero() {
		return fmt.Errorf("%w: first tier must start at zero", workflow.ErrValidation)
	}

	for i, t := range tiers {
		if t.RatePercent == nil && t.FixedAmount == nil {
			return fmt.Errorf("%w: tier %d needs a rate or a fixed amount", workflow.ErrValidation, i)
		}

		last := i == len(tiers)-1
		if last {
			if t.Max != nil {
				return fmt.Errorf("%w: top tier must be open-ended", workflow.ErrValidation)
			}

			continue
		}

		if t.Max == nil {
			return fmt.Errorf("%w: only the top tier may be open-ended", workflow.ErrValidation)
		}

		if !t.Min.LessThan(*t.Max) {
			return fmt.Errorf("%w: tier %d range is empty or inverted", workflow.ErrValidation, i)
		}

		if !tiers[i+1].Min.Equal(*t.Max) {
			return fmt.Errorf("%w: gap between tier %d and %d", workflow.ErrValidation, i, i+1)
		}
	}

	return nil
}

// matchTier returns the tier whose [min, max) range holds base. A base
// equal to a boundary lands in the higher tier.
func matchTier(tiers []Tier, base decimal.Decimal) (Tier, int, bool) {
	for i, t := range tiers {
		if base.Cmp(t.Min) < 0 {
			continue
		}

		if t.Max == nil || base.Cmp(*t.Max) < 0 {
			return t, i, true
		}
	}

	return Tier{}, 0, false
}
