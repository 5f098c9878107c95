package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/audit"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/feature"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/workflow"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=charge
type Repository interface {
	CreateCharge(ctx context.Context, c *Charge) error
	GetCharge(ctx context.Context, id uuid.UUID) (*Charge, error)
	ListCharges(ctx context.Context, filter ListFilter) ([]*Charge, error)

	// BeginWorkflow opens a transaction holding both the charge's
	// advisory lock and the investor/scope/currency ledger lock, so two
	// concurrent submissions net credits exactly once.
	BeginWorkflow(ctx context.Context, chargeID uuid.UUID) (WorkflowTx, error)
}

type WorkflowTx interface {
	Charge(ctx context.Context) (*Charge, error)
	UpdateCharge(ctx context.Context, c *Charge) error
	AppendStep(ctx context.Context, step workflow.ApprovalStep) error

	Credits(ctx context.Context, investorID uuid.UUID, scope credit.Scope, currency string) ([]*credit.Credit, error)
	Applications(ctx context.Context) ([]credit.Application, error)
	SaveApplications(ctx context.Context, apps []credit.Application) error
	SaveCreditBalances(ctx context.Context, credits []*credit.Credit) error
	MarkApplicationsReversed(ctx context.Context, apps []credit.Application) error

	Commit() error
	Rollback() error
}

type ListFilter struct {
	InvestorID *uuid.UUID
	Status     *Status
}

type Service struct {
	repo  Repository
	flags feature.Flags
	sink  audit.Sink
	now   func() time.Time
}

func NewService(repo Repository, flags feature.Flags, sink audit.Sink) *Service {
	return &Service{repo: repo, flags: flags, sink: sink, now: time.Now}
}

type CreateParams struct {
	InvestorID  uuid.UUID
	AgreementID *uuid.UUID
	Scope       credit.Scope
	Currency    string
	Amount      money.Money
	Description string
}

func (s *Service) Create(ctx context.Context, actor workflow.Actor, params CreateParams) (*Charge, error) {
	if err := s.gate(actor, workflow.RoleFinance, workflow.RoleAdmin, workflow.RoleOperations); err != nil {
		return nil, err
	}

	if params.InvestorID == uuid.Nil {
		return nil, fmt.Errorf("%w: investor id is required", workflow.ErrValidation)
	}

	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: charge amount must be positive", workflow.ErrValidation)
	}

	switch params.Scope {
	case credit.ScopeFund, credit.ScopeDeal:
	default:
		return nil, fmt.Errorf("%w: unknown charge scope %q", workflow.ErrValidation, params.Scope)
	}

	c := &Charge{
		InvestorID:  params.InvestorID,
		AgreementID: params.AgreementID,
		Scope:       params.Scope,
		Currency:    params.Currency,
		Description: params.Description,
		Amount:      params.Amount,
		NetPayable:  params.Amount,
		Status:      StatusDraft,
	}
	if err := s.repo.CreateCharge(ctx, c); err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, "charge.created", actor, map[string]any{"amount": c.Amount.String()})

	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.repo.GetCharge(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Charge, error) {
	return s.repo.ListCharges(ctx, filter)
}

// Submit moves draft -> pending and nets the investor's credits FIFO
// against the charge amount. A residual payable is fine. Re-submitting
// a pending charge is an idempotent success with no second netting
// pass.
func (s *Service) Submit(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*Charge, error) {
	if err := s.gate(actor, workflow.RoleFinance, workflow.RoleAdmin, workflow.RoleOperations); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin charge workflow: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.Charge(ctx)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusDraft {
		if c.Status == StatusPending {
			return c, nil
		}

		return nil, fmt.Errorf("%w: charge %s -> %s", workflow.ErrInvalidTransition, c.Status, StatusPending)
	}

	credits, err := tx.Credits(ctx, c.InvestorID, c.Scope, c.Currency)
	if err != nil {
		return nil, fmt.Errorf("loading credits: %w", err)
	}

	plan := credit.Plan(credits, c.Amount, credit.TargetCharge, c.ID, s.now())

	if len(plan.Applications) > 0 {
		if err := tx.SaveApplications(ctx, plan.Applications); err != nil {
			return nil, fmt.Errorf("saving applications: %w", err)
		}

		if err := tx.SaveCreditBalances(ctx, credits); err != nil {
			return nil, fmt.Errorf("saving credit balances: %w", err)
		}
	}

	c.Status = StatusPending
	c.NetPayable = plan.Residual
	c.SubmittedBy = actor.ID

	if err := s.finish(ctx, tx, c, actor, "submitted", ""); err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, "charge.submitted", actor, map[string]any{
		"applied":  plan.Applied().String(),
		"residual": plan.Residual.String(),
	})

	return c, nil
}

// Approve moves pending -> approved.
func (s *Service) Approve(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*Charge, error) {
	if err := s.gate(actor, workflow.RoleAdmin); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin charge workflow: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.Charge(ctx)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusPending {
		if c.Status == StatusApproved || c.Status == StatusPaid {
			return c, nil
		}

		return nil, fmt.Errorf("%w: charge %s -> %s", workflow.ErrInvalidTransition, c.Status, StatusApproved)
	}

	c.Status = StatusApproved
	c.ApprovedBy = actor.ID

	if err := s.finish(ctx, tx, c, actor, "approved", ""); err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, "charge.approved", actor, nil)

	return c, nil
}

// Reject moves pending -> rejected and fully reverses the netting done
// at submission, restoring each consumed credit by the recorded amount
// in reverse order. Rejecting twice is a no-op.
func (s *Service) Reject(ctx context.Context, actor workflow.Actor, id uuid.UUID, reason string) (*Charge, error) {
	if err := s.gate(actor, workflow.RoleFinance, workflow.RoleAdmin); err != nil {
		return nil, err
	}

	tx, err := s.repo.BeginWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin charge workflow: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.Charge(ctx)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusPending {
		if c.Status == StatusRejected {
			return c, nil
		}

		return nil, fmt.Errorf("%w: charge %s -> %s", workflow.ErrInvalidTransition, c.Status, StatusRejected)
	}

	apps, err := tx.Applications(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading applications: %w", err)
	}

	if len(apps) > 0 {
		credits, err := tx.Credits(ctx, c.InvestorID, c.Scope, c.Currency)
		if err != nil {
			return nil, fmt.Errorf("loading credits: %w", err)
		}

		byID := make(map[uuid.UUID]*credit.Credit, len(credits))
		for _, cr := range credits {
			byID[cr.ID] = cr
		}

		reversed := credit.Reverse(byID, apps, s.now())
		if len(reversed) > 0 {
			if err := tx.SaveCreditBalances(ctx, credits); err != nil {
				return nil, fmt.Errorf("saving credit balances: %w", err)
			}

			if err := tx.MarkApplicationsReversed(ctx, reversed); err != nil {
				return nil, fmt.Errorf("marking applications reversed: %w", err)
			}
		}
	}

	c.Status = StatusRejected
	c.NetPayable = c.Amount

	if err := s.finish(ctx, tx, c, actor, "rejected", reason); err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, "charge.rejected", actor, map[string]any{"reason": reason})

	return c, nil
}

// MarkPaid moves approved -> paid. Service principals are blocked:
// money movement needs a human to have looked at it.
func (s *Service) MarkPaid(ctx context.Context, actor workflow.Actor, id uuid.UUID) (*Charge, error) {
	if err := s.gate(actor, workflow.RoleFinance, workflow.RoleAdmin); err != nil {
		return nil, err
	}

	if !actor.Human {
		return nil, fmt.Errorf("%w: marking a charge paid requires a human actor", workflow.ErrForbidden)
	}

	tx, err := s.repo.BeginWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("begin charge workflow: %w", err)
	}
	defer tx.Rollback()

	c, err := tx.Charge(ctx)
	if err != nil {
		return nil, err
	}

	if c.Status != StatusApproved {
		if c.Status == StatusPaid {
			return c, nil
		}

		return nil, fmt.Errorf("%w: charge %s -> %s", workflow.ErrInvalidTransition, c.Status, StatusPaid)
	}

	c.Status = StatusPaid
	c.PaidBy = actor.ID

	if err := s.finish(ctx, tx, c, actor, "paid", ""); err != nil {
		return nil, err
	}

	s.record(ctx, c.ID, "charge.paid", actor, nil)

	return c, nil
}

// finish persists the charge, appends the approval step and commits.
func (s *Service) finish(ctx context.Context, tx WorkflowTx, c *Charge, actor workflow.Actor, step, comment string) error {
	if err := tx.UpdateCharge(ctx, c); err != nil {
		return fmt.Errorf("updating charge: %w", err)
	}

	if err := tx.AppendStep(ctx, workflow.ApprovalStep{
		EntityKind: workflow.KindCharge,
		EntityID:   c.ID,
		Step:       step,
		Status:     "done",
		ActorID:    actor.ID,
		Comment:    comment,
		CreatedAt:  s.now(),
	}); err != nil {
		return fmt.Errorf("appending approval step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit charge workflow: %w", err)
	}

	return nil
}

// gate checks the feature flag and RBAC together; disabled features
// surface as forbidden, never as a silent no-op.
func (s *Service) gate(actor workflow.Actor, roles ...workflow.Role) error {
	if !s.flags.Enabled(feature.ChargesEnabled) {
		return fmt.Errorf("%w: charges are disabled", workflow.ErrForbidden)
	}

	if !actor.HasRole(roles...) {
		return fmt.Errorf("%w: role cannot perform this charge action", workflow.ErrForbidden)
	}

	return nil
}

func (s *Service) record(ctx context.Context, id uuid.UUID, action string, actor workflow.Actor, meta map[string]any) {
	_ = s.sink.Record(ctx, audit.Entry{
		Entity:   string(workflow.KindCharge),
		EntityID: id.String(),
		Action:   action,
		ActorID:  actor.ID,
		At:       s.now(),
		Metadata: meta,
	})
}
