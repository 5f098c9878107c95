package credit

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/money"
)

// Scope limits a credit to fund-level or deal-level payables.
type Scope string

const (
	ScopeFund Scope = "FUND"
	ScopeDeal Scope = "DEAL"
)

// Status is the lifecycle state of a credit balance.
type Status string

const (
	StatusActive   Status = "active"
	StatusDepleted Status = "depleted"
	StatusVoided   Status = "voided"
)

var ErrNotFound = errors.New("credit not found")

// Credit is an investor balance that can be netted against payables.
// Remaining only decreases via ledger application and only increases via
// reversal of a recorded application.
type Credit struct {
	ID         uuid.UUID
	InvestorID uuid.UUID
	Type       string
	Scope      Scope
	Currency   string
	Original   money.Money
	Remaining  money.Money
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// TargetKind names what an application was netted against.
type TargetKind string

const (
	TargetCharge TargetKind = "charge"
	TargetRun    TargetKind = "run"
)

// Application is one immutable ledger event: a slice of a credit
// consumed against a target. BalanceAfter is recorded so the event can
// be reversed exactly.
type Application struct {
	ID           uuid.UUID
	CreditID     uuid.UUID
	TargetKind   TargetKind
	TargetID     uuid.UUID
	Amount       money.Money
	BalanceAfter money.Money
	Reversed     bool
	ReversedAt   *time.Time
	CreatedAt    time.Time
}
