package party

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/workflow"
)

type Repository interface {
	CreateParty(ctx context.Context, p *Party) error
	GetParty(ctx context.Context, id uuid.UUID) (*Party, error)
	ListParties(ctx context.Context, activeOnly bool) ([]*Party, error)
	UpdateParty(ctx context.Context, p *Party) error
	DeleteParty(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	Name string
	Role RoleTag
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Party, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: party name is required", workflow.ErrValidation)
	}

	switch params.Role {
	case RoleDistributor, RoleReferrer, RolePartner:
	default:
		return nil, fmt.Errorf("%w: unknown party role %q", workflow.ErrValidation, params.Role)
	}

	p := &Party{Name: params.Name, Role: params.Role, Active: true}
	if err := s.repo.CreateParty(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Party, error) {
	return s.repo.GetParty(ctx, id)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Party, error) {
	return s.repo.ListParties(ctx, activeOnly)
}

func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Party, error) {
	p, err := s.repo.GetParty(ctx, id)
	if err != nil {
		return nil, err
	}

	p.Active = active
	if err := s.repo.UpdateParty(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Delete removes a party. The store refuses with ErrReferenced while
// any agreement still points at it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteParty(ctx, id)
}
