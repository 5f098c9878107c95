package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/charge"
	"github.com/RFarrand/commis/internal/credit"
	"github.com/RFarrand/commis/internal/workflow"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectChargeColumns = `
	id, investor_id, agreement_id, scope, currency, description,
	amount, net_payable, status, submitted_by, approved_by, paid_by,
	created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanCharge(s scanner) (*charge.Charge, error) {
	var c charge.Charge

	if err := s.Scan(
		&c.ID, &c.InvestorID, &c.AgreementID, &c.Scope, &c.Currency, &c.Description,
		&c.Amount, &c.NetPayable, &c.Status, &c.SubmittedBy, &c.ApprovedBy, &c.PaidBy,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *Store) CreateCharge(ctx context.Context, c *charge.Charge) error {
	query := `
		INSERT INTO charges (investor_id, agreement_id, scope, currency, description, amount, net_payable, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.InvestorID, c.AgreementID, c.Scope, c.Currency, c.Description,
		c.Amount, c.NetPayable, c.Status,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating charge: %w", err)
	}

	return nil
}

func (s *Store) GetCharge(ctx context.Context, id uuid.UUID) (*charge.Charge, error) {
	query := `SELECT ` + selectChargeColumns + ` FROM charges WHERE id = $1`

	c, err := scanCharge(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, charge.ErrNotFound
		}

		return nil, fmt.Errorf("getting charge: %w", err)
	}

	return c, nil
}

func (s *Store) ListCharges(ctx context.Context, filter charge.ListFilter) ([]*charge.Charge, error) {
	query := `SELECT ` + selectChargeColumns + ` FROM charges WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.InvestorID != nil {
		query += fmt.Sprintf(" AND investor_id = $%d", argIdx)

		args = append(args, *filter.InvestorID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing charges: %w", err)
	}
	defer rows.Close()

	var charges []*charge.Charge

	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning charge: %w", err)
		}

		charges = append(charges, c)
	}

	return charges, rows.Err()
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
	tx       *sql.Tx
	chargeID uuid.UUID
}

// BeginWorkflow serializes transitions per charge: the transaction
// takes an advisory lock on the charge id, then on the investor's
// ledger partition once the charge row is read, so concurrent submits
// net credits exactly once.
func (s *Store) BeginWorkflow(ctx context.Context, chargeID uuid.UUID) (charge.WorkflowTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning charge workflow tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", lockKey("charge", chargeID.String())); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("acquiring charge lock: %w", err)
	}

	return &workflowTx{tx: tx, chargeID: chargeID}, nil
}

func (t *workflowTx) Commit() error   { return t.tx.Commit() }
func (t *workflowTx) Rollback() error { return t.tx.Rollback() }

func (t *workflowTx) Charge(ctx context.Context) (*charge.Charge, error) {
	query := `SELECT ` + selectChargeColumns + ` FROM charges WHERE id = $1 FOR UPDATE`

	c, err := scanCharge(t.tx.QueryRowContext(ctx, query, t.chargeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, charge.ErrNotFound
		}

		return nil, fmt.Errorf("getting charge: %w", err)
	}

	return c, nil
}

func (t *workflowTx) UpdateCharge(ctx context.Context, c *charge.Charge) error {
	query := `
		UPDATE charges
		SET net_payable = $1, status = $2, submitted_by = $3, approved_by = $4, paid_by = $5, updated_at = now()
		WHERE id = $6
	`

	_, err := t.tx.ExecContext(ctx, query, c.NetPayable, c.Status, c.SubmittedBy, c.ApprovedBy, c.PaidBy, c.ID)
	if err != nil {
		return fmt.Errorf("updating charge: %w", err)
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

// Credits locks the investor's ledger partition and returns its active
// credits oldest first.
func (t *workflowTx) Credits(ctx context.Context, investorID uuid.UUID, scope credit.Scope, currency string) ([]*credit.Credit, error) {
	key := lockKey("ledger", investorID.String(), string(scope), currency)
	if _, err := t.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", key); err != nil {
		return nil, fmt.Errorf("acquiring ledger lock: %w", err)
	}

	query := `
		SELECT id, investor_id, type, scope, currency, original, remaining, status, created_at, updated_at
		FROM credits
		WHERE investor_id = $1 AND scope = $2 AND currency = $3
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

func (t *workflowTx) Applications(ctx context.Context) ([]credit.Application, error) {
	query := `
		SELECT id, credit_id, target_kind, target_id, amount, balance_after, reversed, reversed_at, created_at
		FROM credit_applications
		WHERE target_kind = $1 AND target_id = $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := t.tx.QueryContext(ctx, query, credit.TargetCharge, t.chargeID)
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

func (t *workflowTx) SaveApplications(ctx context.Context, apps []credit.Application) error {
	query := `
		INSERT INTO credit_applications (id, credit_id, target_kind, target_id, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, a := range apps {
		if _, err := t.tx.ExecContext(ctx, query, a.ID, a.CreditID, a.TargetKind, a.TargetID, a.Amount, a.BalanceAfter, a.CreatedAt); err != nil {
			return fmt.Errorf("saving application: %w", err)
		}
	}

	return nil
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

func (t *workflowTx) MarkApplicationsReversed(ctx context.Context, apps []credit.Application) error {
	query := `UPDATE credit_applications SET reversed = true, reversed_at = $1 WHERE id = $2 AND NOT reversed`

	for _, a := range apps {
		if _, err := t.tx.ExecContext(ctx, query, a.ReversedAt, a.ID); err != nil {
			return fmt.Errorf("marking application reversed: %w", err)
		}
	}

	return nil
}
