package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/contribution"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectContributionColumns = `id, investor_id, fund_id, deal_id, amount, currency, date, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(s scanner) (*contribution.Contribution, error) {
	var c contribution.Contribution

	if err := s.Scan(&c.ID, &c.InvestorID, &c.FundID, &c.DealID, &c.Amount, &c.Currency, &c.Date, &c.CreatedAt); err != nil {
		return nil, err
	}

	return &c, nil
}

func (s *Store) CreateContribution(ctx context.Context, c *contribution.Contribution) error {
	query := `
		INSERT INTO contributions (investor_id, fund_id, deal_id, amount, currency, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.InvestorID, c.FundID, c.DealID, c.Amount, c.Currency, c.Date,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating contribution: %w", err)
	}

	return nil
}

func (s *Store) GetContribution(ctx context.Context, id uuid.UUID) (*contribution.Contribution, error) {
	query := `SELECT ` + selectContributionColumns + ` FROM contributions WHERE id = $1`

	c, err := scanContribution(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contribution.ErrNotFound
		}

		return nil, fmt.Errorf("getting contribution: %w", err)
	}

	return c, nil
}

func (s *Store) ListContributions(ctx context.Context, filter contribution.ListFilter) ([]*contribution.Contribution, error) {
	query := `SELECT ` + selectContributionColumns + ` FROM contributions WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.InvestorID != nil {
		query += fmt.Sprintf(" AND investor_id = $%d", argIdx)

		args = append(args, *filter.InvestorID)
		argIdx++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND date >= $%d", argIdx)

		args = append(args, *filter.StartDate)
		argIdx++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND date <= $%d", argIdx)

		args = append(args, *filter.EndDate)
		argIdx++
	}

	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing contributions: %w", err)
	}
	defer rows.Close()

	var contribs []*contribution.Contribution

	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}

		contribs = append(contribs, c)
	}

	return contribs, rows.Err()
}
