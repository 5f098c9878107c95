package rule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateRule(ctx context.Context, r *Rule) error
	GetRule(ctx context.Context, id uuid.UUID) (*Rule, error)
	ListRules(ctx context.Context, filter ListFilter) ([]*Rule, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeactivateRule(ctx context.Context, id uuid.UUID) error
}

// Period is a half-open window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

type ListFilter struct {
	ActiveOnly bool

	// InEffectAt keeps rules effective at a single instant.
	InEffectAt *time.Time

	// Overlapping keeps rules whose effective range intersects the
	// window, including rules that expire inside it.
	Overlapping *Period

	AgreementID *uuid.UUID
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates, seals and persists a new rule at version 1.
func (s *Service) Create(ctx context.Context, r *Rule) (*Rule, error) {
	r.Version = 1
	r.Active = true

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := r.Seal(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateRule(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

// Update bumps the version and reseals the checksum; identical fields
// always hash identically, so audit can compare revisions.
func (s *Service) Update(ctx context.Context, r *Rule) (*Rule, error) {
	current, err := s.repo.GetRule(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	r.Version = current.Version + 1

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := r.Seal(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateRule(ctx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Rule, error) {
	return s.repo.ListRules(ctx, filter)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateRule(ctx, id)
}
