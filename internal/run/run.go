package run

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/canonical"
	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
)

var ErrNotFound = errors.New("run not found")

// Status is the run lifecycle. failed is terminal and reachable from
// any non-terminal state; exported is the happy-path terminal.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusReviewed Status = "reviewed"
	StatusApproved Status = "approved"
	StatusExported Status = "exported"
	StatusFailed   Status = "failed"
)

// rank orders the happy path so an already-satisfied transition can be
// recognized as idempotent.
func (s Status) rank() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusReviewed:
		return 1
	case StatusApproved:
		return 2
	case StatusExported:
		return 3
	default:
		return -1
	}
}

func (s Status) terminal() bool {
	return s == StatusExported || s == StatusFailed
}

// Settings are the calculation knobs folded into the integrity hash so
// two runs are only comparable when computed the same way.
type Settings struct {
	Rounding     string `json:"rounding"`
	PayableScale int    `json:"payable_scale"`
	CalcScale    int    `json:"calc_scale"`
}

func DefaultSettings() Settings {
	return Settings{Rounding: "half_even", PayableScale: money.PayableScale, CalcScale: money.CalcScale}
}

// Run is an immutable, hashed batch of computed fee lines for a period.
// Once approved, only the status may change.
type Run struct {
	ID          uuid.UUID
	AgreementID uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time

	Lines    []rule.FeeLine
	Outcomes []rule.Outcome

	TotalNet   money.Money
	TotalVAT   money.Money
	TotalGross money.Money
	ScopeNet   map[string]money.Money

	RulesetVersion  int
	RulesetChecksum string
	Settings        Settings
	Hash            string

	Status     Status
	ReviewedBy string
	ApprovedBy string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Input pairs one contribution with its evaluation outcomes.
type Input struct {
	Contribution *contribution.Contribution
	Outcomes     []rule.Outcome
}

// Aggregate folds evaluated inputs into a draft run: totals, scope
// breakdown, ruleset identity and the content hash. Totals are signed;
// discount and netting lines subtract.
func Aggregate(agreementID uuid.UUID, start, end time.Time, rules []*rule.Rule, inputs []Input, settings Settings) (*Run, error) {
	r := &Run{
		AgreementID: agreementID,
		PeriodStart: start,
		PeriodEnd:   end,
		ScopeNet:    map[string]money.Money{},
		Settings:    settings,
		Status:      StatusDraft,
	}

	for _, in := range inputs {
		for _, o := range in.Outcomes {
			r.Outcomes = append(r.Outcomes, o)

			if o.Status != rule.OutcomeApplied || o.Line == nil {
				continue
			}

			line := *o.Line
			r.Lines = append(r.Lines, line)

			r.TotalNet = r.TotalNet.Add(line.Net)
			r.TotalVAT = r.TotalVAT.Add(line.VAT)
			r.TotalGross = r.TotalGross.Add(line.Gross)
			r.ScopeNet[line.Scope] = r.ScopeNet[line.Scope].Add(line.Net)
		}
	}

	version, checksum, err := rulesetIdentity(rules)
	if err != nil {
		return nil, err
	}

	r.RulesetVersion = version
	r.RulesetChecksum = checksum

	hash, err := IntegrityHash(version, checksum, contributions(inputs), settings)
	if err != nil {
		return nil, err
	}

	r.Hash = hash

	return r, nil
}

// recomputeTotals re-derives the signed totals and scope breakdown
// from the lines, after netting settlement repriced any of them.
func (r *Run) recomputeTotals() {
	r.TotalNet = money.Zero()
	r.TotalVAT = money.Zero()
	r.TotalGross = money.Zero()
	r.ScopeNet = map[string]money.Money{}

	for i := range r.Lines {
		line := &r.Lines[i]

		r.TotalNet = r.TotalNet.Add(line.Net)
		r.TotalVAT = r.TotalVAT.Add(line.VAT)
		r.TotalGross = r.TotalGross.Add(line.Gross)
		r.ScopeNet[line.Scope] = r.ScopeNet[line.Scope].Add(line.Net)
	}
}

func contributions(inputs []Input) []*contribution.Contribution {
	cs := make([]*contribution.Contribution, len(inputs))
	for i, in := range inputs {
		cs[i] = in.Contribution
	}

	return cs
}

// rulesetIdentity derives a version (highest rule revision) and a
// checksum over the sorted rule checksums.
func rulesetIdentity(rules []*rule.Rule) (int, string, error) {
	sums := make([]string, 0, len(rules))
	version := 0

	for _, r := range rules {
		sums = append(sums, r.Checksum)

		if r.Version > version {
			version = r.Version
		}
	}

	sort.Strings(sums)

	checksum, err := canonical.Hash(sums)
	if err != nil {
		return 0, "", fmt.Errorf("hashing ruleset: %w", err)
	}

	return version, checksum, nil
}

type hashInput struct {
	ID         string `json:"id"`
	InvestorID string `json:"investor_id"`
	FundID     string `json:"fund_id,omitempty"`
	DealID     string `json:"deal_id,omitempty"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Date       string `json:"date"`
}

type hashPayload struct {
	RulesetVersion  int         `json:"ruleset_version"`
	RulesetChecksum string      `json:"ruleset_checksum"`
	Inputs          []hashInput `json:"inputs"`
	Settings        Settings    `json:"settings"`
}

// IntegrityHash digests the run's inputs in canonical order. Inputs are
// sorted by a stable composite key first, so two runs over the same
// contributions hash identically regardless of insertion order.
func IntegrityHash(rulesetVersion int, rulesetChecksum string, contribs []*contribution.Contribution, settings Settings) (string, error) {
	inputs := make([]hashInput, len(contribs))
	for i, c := range contribs {
		in := hashInput{
			ID:         c.ID.String(),
			InvestorID: c.InvestorID.String(),
			Amount:     c.Amount.String(),
			Currency:   c.Currency,
			Date:       c.Date.UTC().Format(time.RFC3339),
		}
		if c.FundID != nil {
			in.FundID = c.FundID.String()
		}
		if c.DealID != nil {
			in.DealID = c.DealID.String()
		}

		inputs[i] = in
	}

	sort.Slice(inputs, func(i, j int) bool {
		a, b := inputs[i], inputs[j]
		if a.InvestorID != b.InvestorID {
			return a.InvestorID < b.InvestorID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Amount != b.Amount {
			return a.Amount < b.Amount
		}

		return a.ID < b.ID
	})

	return canonical.Hash(hashPayload{
		RulesetVersion:  rulesetVersion,
		RulesetChecksum: rulesetChecksum,
		Inputs:          inputs,
		Settings:        settings,
	})
}
