package contribution

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/money"
)

var ErrNotFound = errors.New("contribution not found")

// Contribution is a single investor payment event. Contributions are
// immutable once referenced by an approved run; the service exposes no
// update operation at all, so immutability holds by construction.
type Contribution struct {
	ID         uuid.UUID
	InvestorID uuid.UUID
	FundID     *uuid.UUID
	DealID     *uuid.UUID
	Amount     money.Money
	Currency   string
	Date       time.Time
	CreatedAt  time.Time
}

// Scope reports whether the contribution is fund-level or deal-level.
func (c *Contribution) Scope() string {
	if c.DealID != nil {
		return "DEAL"
	}

	return "FUND"
}
