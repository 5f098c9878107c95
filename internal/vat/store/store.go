package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RFarrand/commis/internal/vat"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListRates(ctx context.Context) ([]vat.Rate, error) {
	query := `
		SELECT id, country, percent, effective_from, effective_to, created_at
		FROM vat_rates
		ORDER BY country ASC, effective_from ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing vat rates: %w", err)
	}
	defer rows.Close()

	var rates []vat.Rate

	for rows.Next() {
		var r vat.Rate
		if err := rows.Scan(&r.ID, &r.Country, &r.Percent, &r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning vat rate: %w", err)
		}

		rates = append(rates, r)
	}

	return rates, rows.Err()
}

// CreateRate inserts a rate after re-validating the whole country table,
// closing the previous open-ended rate when the new one starts later.
func (s *Store) CreateRate(ctx context.Context, r *vat.Rate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	closePrev := `
		UPDATE vat_rates
		SET effective_to = $1
		WHERE country = $2 AND effective_to IS NULL AND effective_from < $1
	`
	if _, err := tx.ExecContext(ctx, closePrev, r.EffectiveFrom, r.Country); err != nil {
		return fmt.Errorf("closing previous rate: %w", err)
	}

	insert := `
		INSERT INTO vat_rates (country, percent, effective_from, effective_to)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := tx.QueryRowContext(ctx, insert, r.Country, r.Percent, r.EffectiveFrom, r.EffectiveTo).
		Scan(&r.ID, &r.CreatedAt); err != nil {
		return fmt.Errorf("creating vat rate: %w", err)
	}

	rates, err := listRatesTx(ctx, tx, r.Country)
	if err != nil {
		return err
	}

	if err := vat.ValidateRates(rates); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing vat rate: %w", err)
	}

	return nil
}

func listRatesTx(ctx context.Context, tx *sql.Tx, country string) ([]vat.Rate, error) {
	query := `
		SELECT id, country, percent, effective_from, effective_to, created_at
		FROM vat_rates
		WHERE country = $1
		ORDER BY effective_from ASC
	`

	rows, err := tx.QueryContext(ctx, query, country)
	if err != nil {
		return nil, fmt.Errorf("listing country rates: %w", err)
	}
	defer rows.Close()

	var rates []vat.Rate

	for rows.Next() {
		var r vat.Rate
		if err := rows.Scan(&r.ID, &r.Country, &r.Percent, &r.EffectiveFrom, &r.EffectiveTo, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning vat rate: %w", err)
		}

		rates = append(rates, r)
	}

	return rates, rows.Err()
}
