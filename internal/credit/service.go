package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/audit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/workflow"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=credit
type Repository interface {
	CreateCredit(ctx context.Context, c *Credit) error
	GetCredit(ctx context.Context, id uuid.UUID) (*Credit, error)
	ListCredits(ctx context.Context, filter ListFilter) ([]*Credit, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type ListFilter struct {
	InvestorID *uuid.UUID
	Scope      *Scope
	Status     *Status
}

type Service struct {
	repo Repository
	sink audit.Sink
	now  func() time.Time
}

func NewService(repo Repository, sink audit.Sink) *Service {
	return &Service{repo: repo, sink: sink, now: time.Now}
}

type CreateParams struct {
	InvestorID uuid.UUID
	Type       string
	Scope      Scope
	Currency   string
	Amount     money.Money
}

func (s *Service) Create(ctx context.Context, actor workflow.Actor, params CreateParams) (*Credit, error) {
	if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin) {
		return nil, fmt.Errorf("%w: role cannot grant credits", workflow.ErrForbidden)
	}

	if params.InvestorID == uuid.Nil {
		return nil, fmt.Errorf("%w: investor id is required", workflow.ErrValidation)
	}

	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive", workflow.ErrValidation)
	}

	switch params.Scope {
	case ScopeFund, ScopeDeal:
	default:
		return nil, fmt.Errorf("%w: unknown credit scope %q", workflow.ErrValidation, params.Scope)
	}

	if params.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", workflow.ErrValidation)
	}

	c := &Credit{
		InvestorID: params.InvestorID,
		Type:       params.Type,
		Scope:      params.Scope,
		Currency:   params.Currency,
		Original:   params.Amount,
		Remaining:  params.Amount,
		Status:     StatusActive,
	}
	if err := s.repo.CreateCredit(ctx, c); err != nil {
		return nil, err
	}

	_ = s.sink.Record(ctx, audit.Entry{
		Entity:   "credit",
		EntityID: c.ID.String(),
		Action:   "credit.granted",
		ActorID:  actor.ID,
		At:       s.now(),
		Metadata: map[string]any{"amount": c.Original.String(), "scope": string(c.Scope)},
	})

	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Credit, error) {
	return s.repo.GetCredit(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Credit, error) {
	return s.repo.ListCredits(ctx, filter)
}

// Void withdraws an active credit from future netting. Recorded
// applications stay as they are; only the unused remainder is
// withdrawn.
func (s *Service) Void(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*Credit, error) {
	if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin) {
		return nil, fmt.Errorf("%w: role cannot void credits", workflow.ErrForbidden)
	}

	c, err := s.repo.GetCredit(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case StatusVoided:
		return c, nil
	case StatusActive:
	default:
		return nil, fmt.Errorf("%w: credit %s -> %s", workflow.ErrInvalidTransition, c.Status, StatusVoided)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusVoided); err != nil {
		return nil, err
	}

	c.Status = StatusVoided

	_ = s.sink.Record(ctx, audit.Entry{
		Entity:   "credit",
		EntityID: c.ID.String(),
		Action:   "credit.voided",
		ActorID:  actor.ID,
		At:       s.now(),
		Metadata: map[string]any{"remaining": c.Remaining.String()},
	})

	return c, nil
}
