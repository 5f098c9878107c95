package contribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/workflow"
)

type Repository interface {
	CreateContribution(ctx context.Context, c *Contribution) error
	GetContribution(ctx context.Context, id uuid.UUID) (*Contribution, error)
	ListContributions(ctx context.Context, filter ListFilter) ([]*Contribution, error)
}

type ListFilter struct {
	InvestorID *uuid.UUID
	StartDate  *time.Time
	EndDate    *time.Time
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	InvestorID uuid.UUID
	FundID     *uuid.UUID
	DealID     *uuid.UUID
	Amount     money.Money
	Currency   string
	Date       time.Time
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Contribution, error) {
	if params.InvestorID == uuid.Nil {
		return nil, fmt.Errorf("%w: investor id is required", workflow.ErrValidation)
	}

	if params.FundID == nil && params.DealID == nil {
		return nil, fmt.Errorf("%w: contribution needs a fund or deal reference", workflow.ErrValidation)
	}

	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: contribution amount must be positive", workflow.ErrValidation)
	}

	c := &Contribution{
		InvestorID: params.InvestorID,
		FundID:     params.FundID,
		DealID:     params.DealID,
		Amount:     params.Amount,
		Currency:   params.Currency,
		Date:       params.Date,
	}
	if err := s.repo.CreateContribution(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Contribution, error) {
	return s.repo.GetContribution(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Contribution, error) {
	return s.repo.ListContributions(ctx, filter)
}
