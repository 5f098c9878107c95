package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/agreement"
	agreementstore "github.com/RFarrand/commis/internal/agreement/store"
	"github.com/RFarrand/commis/internal/contribution"
	contributionstore "github.com/RFarrand/commis/internal/contribution/store"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/money"
	"github.com/RFarrand/commis/internal/rule"
	rulestore "github.com/RFarrand/commis/internal/rule/store"
	"github.com/RFarrand/commis/internal/run"
	"github.com/RFarrand/commis/internal/vat"
	vatstore "github.com/RFarrand/commis/internal/vat/store"
	"github.com/RFarrand/commis/internal/workflow"
)

// Store backs the run service. Reads that belong to other domains are
// delegated to the owning stores so each table has one set of queries.
type Store struct {
	db            *sql.DB
	agreements    *agreementstore.Store
	rules         *rulestore.Store
	rates         *vatstore.Store
	contributions *contributionstore.Store
}

func New(db *sql.DB) *Store {
	return &Store{
		db:            db,
		agreements:    agreementstore.New(db),
		rules:         rulestore.New(db),
		rates:         vatstore.New(db),
		contributions: contributionstore.New(db),
	}
}

func (s *Store) GetAgreement(ctx context.Context, id uuid.UUID) (*agreement.Agreement, error) {
	return s.agreements.GetAgreement(ctx, id)
}

// ActiveRules returns the active rules whose effective range overlaps
// the period. A rule expiring mid-period is still returned; whether it
// applies to a given contribution is decided at evaluation time
// against the contribution date.
func (s *Store) ActiveRules(ctx context.Context, agreementID uuid.UUID, periodStart, periodEnd time.Time) ([]*rule.Rule, error) {
	return s.rules.ListRules(ctx, rule.ListFilter{
		ActiveOnly:  true,
		Overlapping: &rule.Period{Start: periodStart, End: periodEnd},
		AgreementID: &agreementID,
	})
}

func (s *Store) VATRates(ctx context.Context) ([]vat.Rate, error) {
	return s.rates.ListRates(ctx)
}

func (s *Store) ContributionsInPeriod(ctx context.Context, start, end time.Time) ([]*contribution.Contribution, error) {
	return s.contributions.ListContributions(ctx, contribution.ListFilter{
		StartDate: &start,
		EndDate:   &end,
	})
}

func (s *Store) CreditsForInvestor(ctx context.Context, investorID uuid.UUID) ([]*credit.Credit, error) {
	query := `
		SELECT id, investor_id, type, scope, currency, original, remaining, status, created_at, updated_at
		FROM credits
		WHERE investor_id = $1 AND status = 'active'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, investorID)
	if err != nil {
		return nil, fmt.Errorf("listing credits: %w", err)
	}
	defer rows.Close()

	var credits []*credit.Credit

	for rows.Next() {
		var c credit.Credit
		if err := rows.Scan(&c.ID, &c.InvestorID, &c.Type, &c.Scope, &c.Currency, &c.Original, &c.Remaining, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}

		credits = append(credits, &c)
	}

	return credits, rows.Err()
}

// VolumeAggregates sums an investor's contribution volume over the
// windows tiered and management-fee rules can be based on, all relative
// to asOf.
func (s *Store) VolumeAggregates(ctx context.Context, investorID uuid.UUID, asOf time.Time) (map[rule.Basis]money.Money, error) {
	year, month, _ := asOf.Date()
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, asOf.Location())
	quarterStart := time.Date(year, time.Month((int(month)-1)/3*3+1), 1, 0, 0, 0, 0, asOf.Location())
	yearStart := time.Date(year, 1, 1, 0, 0, 0, 0, asOf.Location())

	query := `
		SELECT
			COALESCE(SUM(amount), 0),
			COALESCE(SUM(amount) FILTER (WHERE date >= $3), 0),
			COALESCE(SUM(amount) FILTER (WHERE date >= $4), 0),
			COALESCE(SUM(amount) FILTER (WHERE date >= $5), 0)
		FROM contributions
		WHERE investor_id = $1 AND date <= $2
	`

	var cumulative, monthly, quarterly, annual money.Money

	err := s.db.QueryRowContext(ctx, query, investorID, asOf, monthStart, quarterStart, yearStart).
		Scan(&cumulative, &monthly, &quarterly, &annual)
	if err != nil {
		return nil, fmt.Errorf("aggregating volumes: %w", err)
	}

	return map[rule.Basis]money.Money{
		rule.BasisCumulative: cumulative,
		rule.BasisMonthly:    monthly,
		rule.BasisQuarterly:  quarterly,
		rule.BasisAnnual:     annual,
	}, nil
}

const selectRunColumns = `
	id, agreement_id, period_start, period_end,
	total_net, total_vat, total_gross, scope_net,
	ruleset_version, ruleset_checksum, settings, hash,
	status, reviewed_by, approved_by, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*run.Run, error) {
	var r run.Run

	var scopeNet, settings []byte

	if err := s.Scan(
		&r.ID, &r.AgreementID, &r.PeriodStart, &r.PeriodEnd,
		&r.TotalNet, &r.TotalVAT, &r.TotalGross, &scopeNet,
		&r.RulesetVersion, &r.RulesetChecksum, &settings, &r.Hash,
		&r.Status, &r.ReviewedBy, &r.ApprovedBy, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(scopeNet) > 0 {
		if err := json.Unmarshal(scopeNet, &r.ScopeNet); err != nil {
			return nil, fmt.Errorf("decoding scope breakdown: %w", err)
		}
	}

	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &r.Settings); err != nil {
			return nil, fmt.Errorf("decoding settings: %w", err)
		}
	}

	return &r, nil
}

type createTx struct {
	tx *sql.Tx
}

// BeginCreate opens the run-creation transaction. Every ledger
// partition the netting plan reads through Credits stays locked until
// commit, so the balance writes in InsertRun cannot race a concurrent
// consumer of the same credits.
func (s *Store) BeginCreate(ctx context.Context) (run.CreateTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning run create tx: %w", err)
	}

	return &createTx{tx: tx}, nil
}

func (t *createTx) Commit() error   { return t.tx.Commit() }
func (t *createTx) Rollback() error { return t.tx.Rollback() }

// Credits takes the ledger partition's advisory lock, then locks and
// returns its active credits oldest first. The same key serializes
// charge submission, so the two consumption paths cannot interleave.
func (t *createTx) Credits(ctx context.Context, investorID uuid.UUID, scope credit.Scope, currency string) ([]*credit.Credit, error) {
	key := lockKey("ledger", investorID.String(), string(scope), currency)
	if _, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return nil, fmt.Errorf("acquiring ledger lock: %w", err)
	}

	query := `
		SELECT id, investor_id, type, scope, currency, original, remaining, status, created_at, updated_at
		FROM credits
		WHERE investor_id = $1 AND scope = $2 AND currency = $3 AND status = 'active'
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`

	rows, err := t.tx.QueryContext(ctx, query, investorID, scope, currency)
	if err != nil {
		return nil, fmt.Errorf("listing credits: %w", err)
	}
	defer rows.Close()

	var credits []*credit.Credit

	for rows.Next() {
		var c credit.Credit
		if err := rows.Scan(&c.ID, &c.InvestorID, &c.Type, &c.Scope, &c.Currency, &c.Original, &c.Remaining, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}

		credits = append(credits, &c)
	}

	return credits, rows.Err()
}

// InsertRun persists the run with its lines, outcomes and the credit
// applications its netting lines planned. Consumed credit balances are
// written from each application's recorded balance-after; the source
// rows are still locked by the Credits read in this transaction.
func (t *createTx) InsertRun(ctx context.Context, r *run.Run) error {
	tx := t.tx

	scopeNet, err := json.Marshal(r.ScopeNet)
	if err != nil {
		return fmt.Errorf("encoding scope breakdown: %w", err)
	}

	settings, err := json.Marshal(r.Settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, agreement_id, period_start, period_end,
			total_net, total_vat, total_gross, scope_net,
			ruleset_version, ruleset_checksum, settings, hash, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	err = tx.QueryRowContext(ctx, query,
		r.ID, r.AgreementID, r.PeriodStart, r.PeriodEnd,
		r.TotalNet, r.TotalVAT, r.TotalGross, scopeNet,
		r.RulesetVersion, r.RulesetChecksum, settings, r.Hash, r.Status,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	for i := range r.Lines {
		if err := insertLine(ctx, tx, r.ID, &r.Lines[i]); err != nil {
			return err
		}
	}

	for _, o := range r.Outcomes {
		if err := insertOutcome(ctx, tx, r.ID, o); err != nil {
			return err
		}
	}

	return nil
}

func insertLine(ctx context.Context, tx *sql.Tx, runID uuid.UUID, line *rule.FeeLine) error {
	var snapshot []byte

	if line.VATSnapshot != nil {
		b, err := json.Marshal(line.VATSnapshot)
		if err != nil {
			return fmt.Errorf("encoding vat snapshot: %w", err)
		}

		snapshot = b
	}

	query := `
		INSERT INTO fee_lines (
			run_id, contribution_id, rule_id, rule_checksum, variant, method, scope,
			base, applied_rate, applied_tier, net, vat, gross, vat_snapshot
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		runID, line.ContributionID, line.RuleID, line.RuleChecksum, line.Variant, line.Method, line.Scope,
		line.Base, line.AppliedRate, line.AppliedTier, line.Net, line.VAT, line.Gross, snapshot,
	).Scan(&line.ID)
	if err != nil {
		return fmt.Errorf("creating fee line: %w", err)
	}

	line.RunID = &runID

	for _, a := range line.CreditApplications {
		if err := insertApplication(ctx, tx, a); err != nil {
			return err
		}

		balanceQuery := `
			UPDATE credits
			SET remaining = $1,
			    status = CASE WHEN $1 = 0 THEN 'depleted' ELSE status END,
			    updated_at = now()
			WHERE id = $2
		`
		if _, err := tx.ExecContext(ctx, balanceQuery, a.BalanceAfter, a.CreditID); err != nil {
			return fmt.Errorf("saving credit balance: %w", err)
		}
	}

	return nil
}

func insertApplication(ctx context.Context, tx *sql.Tx, a credit.Application) error {
	query := `
		INSERT INTO credit_applications (id, credit_id, target_kind, target_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	if _, err := tx.ExecContext(ctx, query, a.ID, a.CreditID, a.TargetKind, a.TargetID, a.Amount, a.BalanceAfter, a.CreatedAt); err != nil {
		return fmt.Errorf("saving application: %w", err)
	}

	return nil
}

func insertOutcome(ctx context.Context, tx *sql.Tx, runID uuid.UUID, o rule.Outcome) error {
	query := `
		INSERT INTO rule_outcomes (run_id, rule_id, checksum, status, reason)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := tx.ExecContext(ctx, query, runID, o.RuleID, o.Checksum, o.Status, o.Reason); err != nil {
		return fmt.Errorf("creating rule outcome: %w", err)
	}

	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	query := `SELECT ` + selectRunColumns + ` FROM runs WHERE id = $1`

	r, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, run.ErrNotFound
		}

		return nil, fmt.Errorf("getting run: %w", err)
	}

	if r.Lines, err = s.runLines(ctx, id); err != nil {
		return nil, err
	}

	if r.Outcomes, err = s.runOutcomes(ctx, id); err != nil {
		return nil, err
	}

	return r, nil
}

func (s *Store) runLines(ctx context.Context, runID uuid.UUID) ([]rule.FeeLine, error) {
	query := `
		SELECT id, run_id, contribution_id, rule_id, rule_checksum, variant, method, scope,
		       base, applied_rate, applied_tier, net, vat, gross, vat_snapshot, frozen_at, created_at
		FROM fee_lines
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("listing fee lines: %w", err)
	}
	defer rows.Close()

	var lines []rule.FeeLine

	for rows.Next() {
		var line rule.FeeLine

		var snapshot []byte

		if err := rows.Scan(
			&line.ID, &line.RunID, &line.ContributionID, &line.RuleID, &line.RuleChecksum,
			&line.Variant, &line.Method, &line.Scope,
			&line.Base, &line.AppliedRate, &line.AppliedTier, &line.Net, &line.VAT, &line.Gross,
			&snapshot, &line.FrozenAt, &line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning fee line: %w", err)
		}

		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &line.VATSnapshot); err != nil {
				return nil, fmt.Errorf("decoding vat snapshot: %w", err)
			}
		}

		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func (s *Store) runOutcomes(ctx context.Context, runID uuid.UUID) ([]rule.Outcome, error) {
	query := `
		SELECT rule_id, checksum, status, reason
		FROM rule_outcomes
		WHERE run_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("listing rule outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []rule.Outcome

	for rows.Next() {
		var o rule.Outcome
		if err := rows.Scan(&o.RuleID, &o.Checksum, &o.Status, &o.Reason); err != nil {
			return nil, fmt.Errorf("scanning rule outcome: %w", err)
		}

		outcomes = append(outcomes, o)
	}

	return outcomes, rows.Err()
}

func (s *Store) ListRuns(ctx context.Context, agreementID *uuid.UUID) ([]*run.Run, error) {
	query := `SELECT ` + selectRunColumns + ` FROM runs WHERE 1=1`

	var args []any

	if agreementID != nil {
		query += " AND agreement_id = $1"

		args = append(args, *agreementID)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// lockKey hashes an entity identifier into the advisory-lock keyspace.
func lockKey(parts ...string) int64 {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}

		h.Write([]byte(p))
	}

	return int64(h.Sum64())
}

type workflowTx struct {
	tx    *sql.Tx
	runID uuid.UUID
}

// BeginWorkflow serializes transitions per run with an advisory lock on
// the run id.
func (s *Store) BeginWorkflow(ctx context.Context, runID uuid.UUID) (run.WorkflowTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning run workflow tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey("run", runID.String())); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}

	return &workflowTx{tx: tx, runID: runID}, nil
}

func (t *workflowTx) Commit() error   { return t.tx.Commit() }
func (t *workflowTx) Rollback() error { return t.tx.Rollback() }

func (t *workflowTx) Run(ctx context.Context) (*run.Run, error) {
	query := `SELECT ` + selectRunColumns + ` FROM runs WHERE id = $1 FOR UPDATE`

	r, err := scanRun(t.tx.QueryRowContext(ctx, query, t.runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, run.ErrNotFound
		}

		return nil, fmt.Errorf("getting run: %w", err)
	}

	return r, nil
}

func (t *workflowTx) UpdateStatus(ctx context.Context, status run.Status, reviewedBy, approvedBy string) error {
	query := `UPDATE runs SET status = $1, reviewed_by = $2, approved_by = $3, updated_at = now() WHERE id = $4`

	if _, err := t.tx.ExecContext(ctx, query, status, reviewedBy, approvedBy, t.runID); err != nil {
		return fmt.Errorf("updating run status: %w", err)
	}

	return nil
}

func (t *workflowTx) AppendStep(ctx context.Context, step workflow.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (entity_kind, entity_id, step, status, actor_id, actor_role, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := t.tx.ExecContext(ctx, query,
		step.EntityKind, step.EntityID, step.Step, step.Status, step.ActorID, step.ActorRole, step.Comment,
	)
	if err != nil {
		return fmt.Errorf("appending approval step: %w", err)
	}

	return nil
}

func (t *workflowTx) Steps(ctx context.Context) ([]workflow.ApprovalStep, error) {
	query := `
		SELECT id, entity_kind, entity_id, step, status, actor_id, actor_role, comment, created_at
		FROM approval_steps
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := t.tx.QueryContext(ctx, query, workflow.KindRun, t.runID)
	if err != nil {
		return nil, fmt.Errorf("listing approval steps: %w", err)
	}
	defer rows.Close()

	var steps []workflow.ApprovalStep

	for rows.Next() {
		var s workflow.ApprovalStep
		if err := rows.Scan(&s.ID, &s.EntityKind, &s.EntityID, &s.Step, &s.Status, &s.ActorID, &s.ActorRole, &s.Comment, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning approval step: %w", err)
		}

		steps = append(steps, s)
	}

	return steps, rows.Err()
}

func (t *workflowTx) FreezeLines(ctx context.Context, at time.Time) error {
	query := `UPDATE fee_lines SET frozen_at = $1 WHERE run_id = $2 AND frozen_at IS NULL`

	if _, err := t.tx.ExecContext(ctx, query, at, t.runID); err != nil {
		return fmt.Errorf("freezing fee lines: %w", err)
	}

	return nil
}

func (t *workflowTx) Applications(ctx context.Context) ([]credit.Application, error) {
	query := `
		SELECT id, credit_id, target_kind, target_id, amount, balance_after, reversed, reversed_at, created_at
		FROM credit_applications
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := t.tx.QueryContext(ctx, query, credit.TargetRun, t.runID)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []credit.Application

	for rows.Next() {
		var a credit.Application
		if err := rows.Scan(&a.ID, &a.CreditID, &a.TargetKind, &a.TargetID, &a.Amount, &a.BalanceAfter, &a.Reversed, &a.ReversedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}

		apps = append(apps, a)
	}

	return apps, rows.Err()
}

// CreditsByID locks and loads the credits the run's applications
// consumed, so the reversal writes back consistent balances.
func (t *workflowTx) CreditsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*credit.Credit, error) {
	query := `
		SELECT id, investor_id, type, scope, currency, original, remaining, status, created_at, updated_at
		FROM credits
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE
	`

	rows, err := t.tx.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("listing credits: %w", err)
	}
	defer rows.Close()

	credits := make(map[uuid.UUID]*credit.Credit, len(ids))

	for rows.Next() {
		var c credit.Credit
		if err := rows.Scan(&c.ID, &c.InvestorID, &c.Type, &c.Scope, &c.Currency, &c.Original, &c.Remaining, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}

		credits[c.ID] = &c
	}

	return credits, rows.Err()
}

func (t *workflowTx) SaveCreditBalances(ctx context.Context, credits []*credit.Credit) error {
	query := `UPDATE credits SET remaining = $1, status = $2, updated_at = now() WHERE id = $3`

	for _, c := range credits {
		if _, err := t.tx.ExecContext(ctx, query, c.Remaining, c.Status, c.ID); err != nil {
			return fmt.Errorf("saving credit balance: %w", err)
		}
	}

	return nil
}

func (t *workflowTx) SaveApplications(ctx context.Context, apps []credit.Application) error {
	for _, a := range apps {
		if err := insertApplication(ctx, t.tx, a); err != nil {
			return err
		}
	}

	return nil
}

func (t *workflowTx) MarkApplicationsReversed(ctx context.Context, apps []credit.Application) error {
	query := `UPDATE credit_applications SET reversed = true, reversed_at = $1 WHERE id = $2 AND NOT reversed`

	for _, a := range apps {
		if _, err := t.tx.ExecContext(ctx, query, a.ReversedAt, a.ID); err != nil {
			return fmt.Errorf("marking application reversed: %w", err)
		}
	}

	return nil
}
