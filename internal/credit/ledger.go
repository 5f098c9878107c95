package credit

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/money"
)

// PlanResult is the outcome of a FIFO netting pass. Residual is the
// payable amount left after all credits were consumed; a positive
// residual is not an error, it simply remains payable.
type PlanResult struct {
	Applications []Application
	Residual     money.Money
}

// Applied is the total consumed by the plan.
func (p PlanResult) Applied() money.Money {
	var total money.Money
	for _, a := range p.Applications {
		total = total.Add(a.Amount)
	}

	return total
}

// Plan consumes the given credits oldest-first against payable,
// mutating each consumed credit's Remaining and Status in place and
// recording one Application per consumed credit. Credits are re-sorted
// by creation date (then ID, for a stable order) before application, so
// callers need not pre-sort.
func Plan(credits []*Credit, payable money.Money, kind TargetKind, targetID uuid.UUID, now time.Time) PlanResult {
	sort.Slice(credits, func(i, j int) bool {
		if credits[i].CreatedAt.Equal(credits[j].CreatedAt) {
			return credits[i].ID.String() < credits[j].ID.String()
		}

		return credits[i].CreatedAt.Before(credits[j].CreatedAt)
	})

	result := PlanResult{Residual: payable}

	for _, c := range credits {
		if !result.Residual.IsPositive() {
			break
		}

		if c.Status != StatusActive || !c.Remaining.IsPositive() {
			continue
		}

		applied := money.Min(c.Remaining, result.Residual)
		c.Remaining = c.Remaining.Sub(applied)

		if c.Remaining.IsZero() {
			c.Status = StatusDepleted
		}

		result.Applications = append(result.Applications, Application{
			ID:           uuid.New(),
			CreditID:     c.ID,
			TargetKind:   kind,
			TargetID:     targetID,
			Amount:       applied,
			BalanceAfter: c.Remaining,
			CreatedAt:    now,
		})

		result.Residual = result.Residual.Sub(applied)
	}

	return result
}

// Reverse restores consumed balances in reverse application order. An
// application already marked reversed is skipped, so reversing twice is
// a no-op rather than a double credit. Returns the applications that
// were actually reversed by this call.
func Reverse(credits map[uuid.UUID]*Credit, apps []Application, now time.Time) []Application {
	var reversed []Application

	for i := len(apps) - 1; i >= 0; i-- {
		a := apps[i]
		if a.Reversed {
			continue
		}

		c, ok := credits[a.CreditID]
		if !ok {
			continue
		}

		c.Remaining = c.Remaining.Add(a.Amount)
		if c.Status == StatusDepleted {
			c.Status = StatusActive
		}

		a.Reversed = true
		at := now
		a.ReversedAt = &at
		reversed = append(reversed, a)
	}

	return reversed
}
