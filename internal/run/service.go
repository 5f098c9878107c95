package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/agreement"
	"github.com/RFarrand/commis/internal/audit"
	"github.com/RFarrand/commis/internal/contribution"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/feature"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
	"github.com/RFarrand/commis/internal/vat"
	"github.com/RFarrand/commis/internal/workflow"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=run
type Repository interface {
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, agreementID *uuid.UUID) ([]*Run, error)

	GetAgreement(ctx context.Context, id uuid.UUID) (*agreement.Agreement, error)
	ActiveRules(ctx context.Context, agreementID uuid.UUID, periodStart, periodEnd time.Time) ([]*rule.Rule, error)
	VATRates(ctx context.Context) ([]vat.Rate, error)
	ContributionsInPeriod(ctx context.Context, start, end time.Time) ([]*contribution.Contribution, error)
	CreditsForInvestor(ctx context.Context, investorID uuid.UUID) ([]*credit.Credit, error)
	VolumeAggregates(ctx context.Context, investorID uuid.UUID, asOf time.Time) (map[rule.Basis]money.Money, error)

	// BeginCreate opens the transaction a draft run is planned and
	// persisted in.
	BeginCreate(ctx context.Context) (CreateTx, error)

	// BeginWorkflow opens a transaction holding the run's advisory
	// lock, serializing concurrent transitions on the same run.
	BeginWorkflow(ctx context.Context, runID uuid.UUID) (WorkflowTx, error)
}

// CreateTx persists one draft run atomically with the credit balances
// its netting consumed. Credits holds the (investor, scope, currency)
// ledger partition lock until commit, so a run create and a charge
// submit racing over the same credits serialize instead of
// double-spending.
type CreateTx interface {
	Credits(ctx context.Context, investorID uuid.UUID, scope credit.Scope, currency string) ([]*credit.Credit, error)
	InsertRun(ctx context.Context, r *Run) error

	Commit() error
	Rollback() error
}

// WorkflowTx is one atomic workflow action. Nothing is visible until
// Commit; on any failure mid-transition the rollback leaves the run in
// its pre-transition state.
type WorkflowTx interface {
	Run(ctx context.Context) (*Run, error)
	UpdateStatus(ctx context.Context, status Status, reviewedBy, approvedBy string) error
	AppendStep(ctx context.Context, step workflow.ApprovalStep) error
	Steps(ctx context.Context) ([]workflow.ApprovalStep, error)
	FreezeLines(ctx context.Context, at time.Time) error

	Applications(ctx context.Context) ([]credit.Application, error)
	CreditsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*credit.Credit, error)
	SaveCreditBalances(ctx context.Context, credits []*credit.Credit) error
	SaveApplications(ctx context.Context, apps []credit.Application) error
	MarkApplicationsReversed(ctx context.Context, apps []credit.Application) error

	Commit() error
	Rollback() error
}

// Exporter pushes an approved run to the settlement endpoint.
type Exporter interface {
	Push(ctx context.Context, r *Run) error
}

type Service struct {
	repo     Repository
	flags    feature.Flags
	sink     audit.Sink
	exporter Exporter
	now      func() time.Time
}

func NewService(repo Repository, flags feature.Flags, sink audit.Sink, exporter Exporter) *Service {
	return &Service{repo: repo, flags: flags, sink: sink, exporter: exporter, now: time.Now}
}

type CreateParams struct {
	AgreementID uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Create evaluates the period's contributions against the agreement's
// active ruleset and persists the resulting draft run, including FIFO
// netting applications for credit_netting lines.
func (s *Service) Create(ctx context.Context, actor workflow.Actor, params CreateParams) (*Run, error) {
	if !s.flags.Enabled(feature.RunsEnabled) {
		return nil, fmt.Errorf("%w: runs are disabled", workflow.ErrForbidden)
	}

	if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin, workflow.RoleOperations) {
		return nil, fmt.Errorf("%w: role cannot create runs", workflow.ErrForbidden)
	}

	if !params.PeriodStart.Before(params.PeriodEnd) {
		return nil, fmt.Errorf("%w: period start must precede period end", workflow.ErrValidation)
	}

	inputs, rules, err := s.evaluatePeriod(ctx, params)
	if err != nil {
		return nil, err
	}

	r, err := Aggregate(params.AgreementID, params.PeriodStart, params.PeriodEnd, rules, inputs, DefaultSettings())
	if err != nil {
		return nil, fmt.Errorf("aggregating run: %w", err)
	}

	r.ID = uuid.New()

	tx, err := s.repo.BeginCreate(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin run create: %w", err)
	}
	defer tx.Rollback()

	if err := s.planNetting(ctx, tx, r, inputs); err != nil {
		return nil, err
	}

	if err := tx.InsertRun(ctx, r); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run create: %w", err)
	}

	s.record(ctx, r.ID, "run.created", actor, map[string]any{
		"hash":   r.Hash,
		"lines":  len(r.Lines),
		"period": params.PeriodStart.Format(time.DateOnly) + ".." + params.PeriodEnd.Format(time.DateOnly),
	})

	return r, nil
}

// Evaluate runs the same computation as Create without persisting
// anything. Used for previews.
func (s *Service) Evaluate(ctx context.Context, params CreateParams) ([]Input, error) {
	inputs, _, err := s.evaluatePeriod(ctx, params)
	return inputs, err
}

func (s *Service) evaluatePeriod(ctx context.Context, params CreateParams) ([]Input, []*rule.Rule, error) {
	ag, err := s.repo.GetAgreement(ctx, params.AgreementID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading agreement: %w", err)
	}

	rules, err := s.repo.ActiveRules(ctx, params.AgreementID, params.PeriodStart, params.PeriodEnd)
	if err != nil {
		return nil, nil, fmt.Errorf("loading rules: %w", err)
	}

	rates, err := s.repo.VATRates(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("loading vat rates: %w", err)
	}

	contribs, err := s.repo.ContributionsInPeriod(ctx, params.PeriodStart, params.PeriodEnd)
	if err != nil {
		return nil, nil, fmt.Errorf("loading contributions: %w", err)
	}

	inputs := make([]Input, 0, len(contribs))
	creditsByInvestor := make(map[uuid.UUID][]*credit.Credit)

	for _, c := range contribs {
		credits, ok := creditsByInvestor[c.InvestorID]
		if !ok {
			credits, err = s.repo.CreditsForInvestor(ctx, c.InvestorID)
			if err != nil {
				return nil, nil, fmt.Errorf("loading credits for %s: %w", c.InvestorID, err)
			}

			creditsByInvestor[c.InvestorID] = credits
		}

		aggregates, err := s.repo.VolumeAggregates(ctx, c.InvestorID, c.Date)
		if err != nil {
			return nil, nil, fmt.Errorf("loading aggregates for %s: %w", c.InvestorID, err)
		}

		outcomes := rule.Evaluate(c, rule.Context{
			Rules:      rules,
			VATMode:    ag.VATMode,
			VATCountry: ag.VATCountry,
			VATRates:   rates,
			Credits:    credits,
			Aggregates: aggregates,
		})

		inputs = append(inputs, Input{Contribution: c, Outcomes: outcomes})
	}

	return inputs, rules, nil
}

// planNetting turns every credit_netting line into concrete FIFO
// applications. Each line draws on its own (investor, scope, currency)
// ledger partition, read through the create transaction so the
// balances are current and locked. Plan mutates the loaded slice, so
// lines sharing a partition consume the remaining balance in order; a
// line the partition cannot fully back is repriced to the applied
// amount and the run totals are re-derived. Rejection reverses the
// applications.
func (s *Service) planNetting(ctx context.Context, tx CreateTx, r *Run, inputs []Input) error {
	now := s.now()

	contribByID := make(map[uuid.UUID]*contribution.Contribution, len(inputs))
	for _, in := range inputs {
		contribByID[in.Contribution.ID] = in.Contribution
	}

	type partition struct {
		investor uuid.UUID
		scope    credit.Scope
		currency string
	}

	ledgers := make(map[partition][]*credit.Credit)

	repriced := false

	for i := range r.Lines {
		line := &r.Lines[i]
		if line.Variant != rule.VariantCreditNetting || !line.Net.IsNegative() {
			continue
		}

		c := contribByID[line.ContributionID]
		key := partition{investor: c.InvestorID, scope: credit.Scope(line.Scope), currency: c.Currency}

		credits, ok := ledgers[key]
		if !ok {
			var err error

			credits, err = tx.Credits(ctx, key.investor, key.scope, key.currency)
			if err != nil {
				return fmt.Errorf("locking credits for %s: %w", key.investor, err)
			}

			ledgers[key] = credits
		}

		plan := credit.Plan(credits, line.Net.Neg(), credit.TargetRun, r.ID, now)
		line.CreditApplications = plan.Applications

		if plan.Residual.IsPositive() {
			line.Reprice(plan.Applied().Neg())

			repriced = true
		}
	}

	if repriced {
		r.recomputeTotals()
	}

	return nil
}

// Submit moves draft -> reviewed. Re-invoking once reviewed is an
// idempotent success that appends no step.
func (s *Service) Submit(ctx context.Context, actor workflow.Actor, runID uuid.UUID) (*Run, error) {
	return s.transition(ctx, actor, runID, StatusReviewed, "")
}

// Approve moves reviewed -> approved, freezing lines and VAT snapshots.
// The approver must be a different actor than the reviewer.
func (s *Service) Approve(ctx context.Context, actor workflow.Actor, runID uuid.UUID) (*Run, error) {
	return s.transition(ctx, actor, runID, StatusApproved, "")
}

// Reject moves any non-terminal run to failed and reverses all credit
// applications recorded for it.
func (s *Service) Reject(ctx context.Context, actor workflow.Actor, runID uuid.UUID, comment string) (*Run, error) {
	return s.transition(ctx, actor, runID, StatusFailed, comment)
}

// Export pushes an approved run to the settlement endpoint and marks it
// exported.
func (s *Service) Export(ctx context.Context, actor workflow.Actor, runID uuid.UUID) (*Run, error) {
	if !s.flags.Enabled(feature.RunsExport) {
		return nil, fmt.Errorf("%w: run export is disabled", workflow.ErrForbidden)
	}

	return s.transition(ctx, actor, runID, StatusExported, "")
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Run, error) {
	return s.repo.GetRun(ctx, id)
}

func (s *Service) List(ctx context.Context, agreementID *uuid.UUID) ([]*Run, error) {
	return s.repo.ListRuns(ctx, agreementID)
}

func (s *Service) transition(ctx context.Context, actor workflow.Actor, runID uuid.UUID, target Status, comment string) (*Run, error) {
	if !s.flags.Enabled(feature.RunsEnabled) {
		return nil, fmt.Errorf("%w: runs are disabled", workflow.ErrForbidden)
	}

	tx, err := s.repo.BeginWorkflow(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("begin run workflow: %w", err)
	}
	defer tx.Rollback()

	r, err := tx.Run(ctx)
	if err != nil {
		return nil, err
	}

	// Idempotency: a transition already satisfied returns the current
	// state without a new approval step.
	if target == StatusFailed && r.Status == StatusFailed {
		return r, nil
	}

	if target != StatusFailed && r.Status != StatusFailed && r.Status.rank() >= target.rank() {
		return r, nil
	}

	if err := s.guard(r, actor, target); err != nil {
		return nil, err
	}

	reviewedBy, approvedBy := r.ReviewedBy, r.ApprovedBy

	switch target {
	case StatusReviewed:
		reviewedBy = actor.ID
	case StatusApproved:
		if r.ReviewedBy != "" && r.ReviewedBy == actor.ID {
			return nil, fmt.Errorf("%w: reviewer cannot approve their own run", workflow.ErrForbidden)
		}

		approvedBy = actor.ID

		if err := tx.FreezeLines(ctx, s.now()); err != nil {
			return nil, fmt.Errorf("freezing lines: %w", err)
		}
	case StatusFailed:
		if err := s.reverseApplications(ctx, tx); err != nil {
			return nil, err
		}
	case StatusExported:
		if err := s.exporter.Push(ctx, r); err != nil {
			return nil, fmt.Errorf("exporting run: %w", err)
		}
	}

	if err := tx.UpdateStatus(ctx, target, reviewedBy, approvedBy); err != nil {
		return nil, err
	}

	step := workflow.ApprovalStep{
		EntityKind: workflow.KindRun,
		EntityID:   runID,
		Step:       string(target),
		Status:     "done",
		ActorID:    actor.ID,
		Comment:    comment,
		CreatedAt:  s.now(),
	}
	if err := tx.AppendStep(ctx, step); err != nil {
		return nil, fmt.Errorf("appending approval step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run workflow: %w", err)
	}

	r.Status = target
	r.ReviewedBy = reviewedBy
	r.ApprovedBy = approvedBy

	s.record(ctx, runID, "run."+string(target), actor, map[string]any{"comment": comment})

	return r, nil
}

var runTransitions = map[Status]Status{
	StatusReviewed: StatusDraft,
	StatusApproved: StatusReviewed,
	StatusExported: StatusApproved,
}

func (s *Service) guard(r *Run, actor workflow.Actor, target Status) error {
	if target == StatusFailed {
		if r.Status.terminal() {
			return fmt.Errorf("%w: run is %s", workflow.ErrInvalidTransition, r.Status)
		}

		if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin) {
			return fmt.Errorf("%w: role cannot reject runs", workflow.ErrForbidden)
		}

		return nil
	}

	if from, ok := runTransitions[target]; !ok || r.Status != from {
		return fmt.Errorf("%w: run %s -> %s", workflow.ErrInvalidTransition, r.Status, target)
	}

	switch target {
	case StatusReviewed:
		if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin) {
			return fmt.Errorf("%w: review requires finance or admin", workflow.ErrForbidden)
		}
	case StatusApproved:
		if !actor.HasRole(workflow.RoleAdmin) {
			return fmt.Errorf("%w: approval requires admin", workflow.ErrForbidden)
		}
	case StatusExported:
		if !actor.HasRole(workflow.RoleFinance, workflow.RoleAdmin) {
			return fmt.Errorf("%w: export requires finance or admin", workflow.ErrForbidden)
		}
	}

	return nil
}

func (s *Service) reverseApplications(ctx context.Context, tx WorkflowTx) error {
	apps, err := tx.Applications(ctx)
	if err != nil {
		return fmt.Errorf("loading applications: %w", err)
	}

	if len(apps) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(apps))
	for _, a := range apps {
		ids = append(ids, a.CreditID)
	}

	credits, err := tx.CreditsByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading credits: %w", err)
	}

	reversed := credit.Reverse(credits, apps, s.now())
	if len(reversed) == 0 {
		return nil
	}

	balances := make([]*credit.Credit, 0, len(credits))
	for _, c := range credits {
		balances = append(balances, c)
	}

	if err := tx.SaveCreditBalances(ctx, balances); err != nil {
		return fmt.Errorf("saving credit balances: %w", err)
	}

	if err := tx.MarkApplicationsReversed(ctx, reversed); err != nil {
		return fmt.Errorf("marking applications reversed: %w", err)
	}

	return nil
}

func (s *Service) record(ctx context.Context, runID uuid.UUID, action string, actor workflow.Actor, meta map[string]any) {
	_ = s.sink.Record(ctx, audit.Entry{
		Entity:   string(workflow.KindRun),
		EntityID: runID.String(),
		Action:   action,
		ActorID:  actor.ID,
		At:       s.now(),
		Metadata: meta,
	})
}
