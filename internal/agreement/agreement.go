package agreement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RFarrand/commis/internal/vat"
	"github.com/RFarrand/commis/internal/workflow"
)

var (
	ErrNotFound = errors.New("agreement not found")

	// ErrImmutable means the agreement is approved; changes go through
	// a versioned amendment, never in place.
	ErrImmutable = errors.New("approved agreement is immutable")
)

type Scope string

const (
	ScopeFund Scope = "FUND"
	ScopeDeal Scope = "DEAL"
)

type PricingMode string

const (
	PricingTrack  PricingMode = "TRACK"
	PricingCustom PricingMode = "CUSTOM"
)

type Track string

const (
	TrackA Track = "A"
	TrackB Track = "B"
	TrackC Track = "C"
)

type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusApproved   Status = "approved"
	StatusSuperseded Status = "superseded"
)

// RateTerms holds the negotiated numbers. For TRACK pricing the track
// determines the effective rates and these act as overrides only for
// CUSTOM mode.
type RateTerms struct {
	CommissionPercent decimal.Decimal  `json:"commission_percent"`
	ManagementPercent *decimal.Decimal `json:"management_percent,omitempty"`
	FixedFee          *decimal.Decimal `json:"fixed_fee,omitempty"`
}

type Agreement struct {
	ID           uuid.UUID
	PartyID      uuid.UUID
	Scope        Scope
	PricingMode  PricingMode
	Track        *Track
	Terms        RateTerms
	Status       Status
	VATMode      vat.Mode
	VATCountry   string
	Version      int
	SupersedesID *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// Validate enforces the structural invariants: fund-scoped agreements
// must use track pricing, track pricing needs a selected track.
func (a *Agreement) Validate() error {
	switch a.Scope {
	case ScopeFund, ScopeDeal:
	default:
		return fmt.Errorf("%w: unknown scope %q", workflow.ErrValidation, a.Scope)
	}

	switch a.PricingMode {
	case PricingTrack, PricingCustom:
	default:
		return fmt.Errorf("%w: unknown pricing mode %q", workflow.ErrValidation, a.PricingMode)
	}

	if a.Scope == ScopeFund && a.PricingMode != PricingTrack {
		return fmt.Errorf("%w: fund-scoped agreements must use track pricing", workflow.ErrValidation)
	}

	if a.PricingMode == PricingTrack {
		if a.Track == nil {
			return fmt.Errorf("%w: track pricing needs a selected track", workflow.ErrValidation)
		}

		switch *a.Track {
		case TrackA, TrackB, TrackC:
		default:
			return fmt.Errorf("%w: unknown track %q", workflow.ErrValidation, *a.Track)
		}
	}

	switch a.VATMode {
	case vat.ModeAdded, vat.ModeIncluded, vat.ModeExempt:
	default:
		return fmt.Errorf("%w: unknown vat mode %q", workflow.ErrValidation, a.VATMode)
	}

	return nil
}
