package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/credit"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectCreditColumns = `
	id, investor_id, type, scope, currency, original, remaining, status,
	created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanCredit(s scanner) (*credit.Credit, error) {
	var c credit.Credit

	if err := s.Scan(
		&c.ID, &c.InvestorID, &c.Type, &c.Scope, &c.Currency,
		&c.Original, &c.Remaining, &c.Status,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *Store) CreateCredit(ctx context.Context, c *credit.Credit) error {
	query := `
		INSERT INTO credits (investor_id, type, scope, currency, original, remaining, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.InvestorID, c.Type, c.Scope, c.Currency, c.Original, c.Remaining, c.Status,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating credit: %w", err)
	}

	return nil
}

func (s *Store) GetCredit(ctx context.Context, id uuid.UUID) (*credit.Credit, error) {
	query := `SELECT ` + selectCreditColumns + ` FROM credits WHERE id = $1`

	c, err := scanCredit(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credit.ErrNotFound
		}

		return nil, fmt.Errorf("getting credit: %w", err)
	}

	return c, nil
}

func (s *Store) ListCredits(ctx context.Context, filter credit.ListFilter) ([]*credit.Credit, error) {
	query := `SELECT ` + selectCreditColumns + ` FROM credits WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.InvestorID != nil {
		query += fmt.Sprintf(" AND investor_id = $%d", argIdx)

		args = append(args, *filter.InvestorID)
		argIdx++
	}

	if filter.Scope != nil {
		query += fmt.Sprintf(" AND scope = $%d", argIdx)

		args = append(args, *filter.Scope)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing credits: %w", err)
	}
	defer rows.Close()

	var credits []*credit.Credit

	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning credit: %w", err)
		}

		credits = append(credits, c)
	}

	return credits, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status credit.Status) error {
	query := `UPDATE credits SET status = $1, updated_at = now() WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating credit status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return credit.ErrNotFound
	}

	return nil
}
