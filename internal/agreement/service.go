package agreement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/vat"
	"github.com/RFarrand/commis/internal/workflow"
)

type Repository interface {
	CreateAgreement(ctx context.Context, a *Agreement) error
	GetAgreement(ctx context.Context, id uuid.UUID) (*Agreement, error)
	ListAgreements(ctx context.Context, filter ListFilter) ([]*Agreement, error)
	UpdateAgreement(ctx context.Context, a *Agreement) error

	// Supersede atomically creates the amendment and marks the old
	// version superseded.
	Supersede(ctx context.Context, old *Agreement, amendment *Agreement) error
}

type ListFilter struct {
	PartyID *uuid.UUID
	Status  *Status
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	PartyID     uuid.UUID
	Scope       Scope
	PricingMode PricingMode
	Track       *Track
	Terms       RateTerms
	VATMode     vat.Mode
	VATCountry  string
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Agreement, error) {
	a := &Agreement{
		PartyID:     params.PartyID,
		Scope:       params.Scope,
		PricingMode: params.PricingMode,
		Track:       params.Track,
		Terms:       params.Terms,
		Status:      StatusDraft,
		VATMode:     params.VATMode,
		VATCountry:  params.VATCountry,
		Version:     1,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateAgreement(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Agreement, error) {
	return s.repo.GetAgreement(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Agreement, error) {
	return s.repo.ListAgreements(ctx, filter)
}

// UpdateStatus walks the agreement forward: draft → active → approved.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Agreement, error) {
	a, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := map[Status]Status{StatusDraft: StatusActive, StatusActive: StatusApproved}
	if next, ok := allowed[a.Status]; !ok || next != status {
		return nil, fmt.Errorf("%w: agreement %s -> %s", workflow.ErrInvalidTransition, a.Status, status)
	}

	a.Status = status
	if err := s.repo.UpdateAgreement(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

// Update edits a draft or active agreement in place. Approved
// agreements are immutable; use Amend.
func (s *Service) Update(ctx context.Context, a *Agreement) error {
	current, err := s.repo.GetAgreement(ctx, a.ID)
	if err != nil {
		return err
	}

	if current.Status == StatusApproved || current.Status == StatusSuperseded {
		return ErrImmutable
	}

	if err := a.Validate(); err != nil {
		return err
	}

	return s.repo.UpdateAgreement(ctx, a)
}

// Amend creates a new version of an approved agreement that supersedes
// it. The original keeps its content forever; only its status moves to
// superseded.
func (s *Service) Amend(ctx context.Context, id uuid.UUID, params CreateParams) (*Agreement, error) {
	old, err := s.repo.GetAgreement(ctx, id)
	if err != nil {
		return nil, err
	}

	if old.Status != StatusApproved {
		return nil, fmt.Errorf("%w: only approved agreements are amended, %s is %s", workflow.ErrInvalidTransition, id, old.Status)
	}

	amendment := &Agreement{
		PartyID:      old.PartyID,
		Scope:        params.Scope,
		PricingMode:  params.PricingMode,
		Track:        params.Track,
		Terms:        params.Terms,
		Status:       StatusDraft,
		VATMode:      params.VATMode,
		VATCountry:   params.VATCountry,
		Version:      old.Version + 1,
		SupersedesID: &old.ID,
	}
	if err := amendment.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Supersede(ctx, old, amendment); err != nil {
		return nil, err
	}

	return amendment, nil
}
