package charge

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
)

var ErrNotFound = errors.New("charge not found")

// Status is the charge lifecycle: draft -> pending -> approved -> paid,
// with pending -> rejected as the correction branch.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusRejected Status = "rejected"
)

// Charge is an individually workflowed monetary obligation, decoupled
// from runs but sharing the credit ledger. NetPayable is Amount minus
// whatever the FIFO netting consumed at submission.
type Charge struct {
	ID          uuid.UUID
	InvestorID  uuid.UUID
	AgreementID *uuid.UUID
	Scope       credit.Scope
	Currency    string
	Description string

	Amount     money.Money
	NetPayable money.Money

	Status      Status
	SubmittedBy string
	ApprovedBy  string
	PaidBy      string

	CreatedAt time.Time
	UpdatedAt *time.Time
}
