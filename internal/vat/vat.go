package vat

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/money"
)

// Mode says how an agreement treats VAT on commission amounts.
type Mode string

const (
	// ModeAdded: gross amounts are tax-exclusive, VAT is added on top.
	ModeAdded Mode = "added"
	// ModeIncluded: gross amounts are tax-inclusive, VAT is backed out.
	ModeIncluded Mode = "included"
	// ModeExempt: no VAT applies.
	ModeExempt Mode = "exempt"
)

// ErrNoRate is returned when no rate covers the jurisdiction and date
// and the agreement's VAT mode requires one.
var ErrNoRate = errors.New("no vat rate for jurisdiction and date")

// Rate is one row of the per-country VAT rate table. At most one rate
// per country may have a nil EffectiveTo (the current rate), and ranges
// for the same country must not overlap.
type Rate struct {
	ID            uuid.UUID
	Country       string
	Percent       decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	CreatedAt     time.Time
}

func (r Rate) covers(at time.Time) bool {
	if at.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !at.Before(*r.EffectiveTo) {
		return false
	}

	return true
}

// Resolve selects the rate whose range contains asOf for the country.
func Resolve(rates []Rate, country string, asOf time.Time) (Rate, error) {
	for _, r := range rates {
		if r.Country == country && r.covers(asOf) {
			return r, nil
		}
	}

	return Rate{}, fmt.Errorf("%w: %s at %s", ErrNoRate, country, asOf.Format(time.DateOnly))
}

// ValidateRates enforces the table invariants for a single country's
// rates: at most one open-ended rate, no overlapping ranges.
func ValidateRates(rates []Rate) error {
	byCountry := make(map[string][]Rate)
	for _, r := range rates {
		byCountry[r.Country] = append(byCountry[r.Country], r)
	}

	for country, rs := range byCountry {
		sort.Slice(rs, func(i, j int) bool { return rs[i].EffectiveFrom.Before(rs[j].EffectiveFrom) })

		open := 0

		for i, r := range rs {
			if r.EffectiveTo == nil {
				open++
				if open > 1 {
					return fmt.Errorf("country %s has more than one open-ended rate", country)
				}
			} else if !r.EffectiveFrom.Before(*r.EffectiveTo) {
				return fmt.Errorf("country %s rate range is empty or inverted", country)
			}

			if i == 0 {
				continue
			}

			prev := rs[i-1]
			if prev.EffectiveTo == nil || r.EffectiveFrom.Before(*prev.EffectiveTo) {
				return fmt.Errorf("country %s has overlapping rate ranges", country)
			}
		}
	}

	return nil
}

// Snapshot is the rate and policy frozen onto a fee line once the run
// that owns the line is approved. Later changes to the rate table never
// alter it.
type Snapshot struct {
	Country   string          `json:"country"`
	Percent   decimal.Decimal `json:"percent"`
	Mode      Mode            `json:"mode"`
	Inclusive bool            `json:"inclusive"`
}

// Breakdown is the VAT split of a single amount.
type Breakdown struct {
	Net   money.Money
	VAT   money.Money
	Gross money.Money
}

// Apply computes the VAT breakdown of amount under the given mode.
// For ModeAdded the input is tax-exclusive; for ModeIncluded it is
// tax-inclusive. Both directions are numerically invertible within
// payable rounding.
func Apply(amount money.Money, percent decimal.Decimal, mode Mode) Breakdown {
	switch mode {
	case ModeIncluded:
		divisor := money.FromDecimal(decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100))))
		net := amount.Div(divisor)
		return Breakdown{
			Net:   net,
			VAT:   amount.Sub(net),
			Gross: amount,
		}
	case ModeExempt:
		return Breakdown{Net: amount, VAT: money.Zero(), Gross: amount}
	default: // ModeAdded
		tax := amount.MulRate(percent)
		return Breakdown{
			Net:   amount,
			VAT:   tax,
			Gross: amount.Add(tax),
		}
	}
}
