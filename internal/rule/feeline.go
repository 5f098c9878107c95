package rule

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/vat"
)

// FeeLine is one monetary result, derived per (contribution, rule)
// pair. Lines belonging to an approved run are never mutated; a
// correction regenerates a new run.
type FeeLine struct {
	ID             uuid.UUID
	RunID          *uuid.UUID
	ContributionID uuid.UUID
	RuleID         uuid.UUID
	RuleChecksum   string
	Variant        Variant
	Method         string
	Scope          string

	Base        money.Money
	AppliedRate *decimal.Decimal
	AppliedTier *int

	Net   money.Money
	VAT   money.Money
	Gross money.Money

	VATSnapshot *vat.Snapshot

	CreditApplications []credit.Application

	FrozenAt  *time.Time
	CreatedAt time.Time
}

// Reprice replaces the line's net amount and re-derives VAT and gross
// from the VAT snapshot. Used when netting settles a line at less than
// its evaluated amount.
func (l *FeeLine) Reprice(net money.Money) {
	l.Net = net.RoundPayable()

	if l.VATSnapshot == nil {
		l.VAT = money.Zero()
		l.Gross = l.Net

		return
	}

	b := vat.Apply(l.Net, l.VATSnapshot.Percent, vat.ModeAdded)
	l.VAT = b.VAT.RoundPayable()
	l.Gross = l.Net.Add(l.VAT)
}
