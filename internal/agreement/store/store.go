package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/agreement"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectAgreementColumns = `
	id, party_id, scope, pricing_mode, track, terms, status,
	vat_mode, vat_country, version, supersedes_id, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanAgreement(s scanner) (*agreement.Agreement, error) {
	var a agreement.Agreement

	var track sql.NullString

	var terms []byte

	if err := s.Scan(
		&a.ID, &a.PartyID, &a.Scope, &a.PricingMode, &track, &terms, &a.Status,
		&a.VATMode, &a.VATCountry, &a.Version, &a.SupersedesID, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if track.Valid {
		t := agreement.Track(track.String)
		a.Track = &t
	}

	if len(terms) > 0 {
		if err := json.Unmarshal(terms, &a.Terms); err != nil {
			return nil, fmt.Errorf("decoding agreement terms: %w", err)
		}
	}

	return &a, nil
}

func (s *Store) CreateAgreement(ctx context.Context, a *agreement.Agreement) error {
	return s.createAgreement(ctx, s.db, a)
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) createAgreement(ctx context.Context, db execer, a *agreement.Agreement) error {
	terms, err := json.Marshal(a.Terms)
	if err != nil {
		return fmt.Errorf("encoding agreement terms: %w", err)
	}

	var track *string
	if a.Track != nil {
		t := string(*a.Track)
		track = &t
	}

	query := `
		INSERT INTO agreements (party_id, scope, pricing_mode, track, terms, status, vat_mode, vat_country, version, supersedes_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err = db.QueryRowContext(ctx, query,
		a.PartyID, a.Scope, a.PricingMode, track, terms, a.Status,
		a.VATMode, a.VATCountry, a.Version, a.SupersedesID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating agreement: %w", err)
	}

	return nil
}

func (s *Store) GetAgreement(ctx context.Context, id uuid.UUID) (*agreement.Agreement, error) {
	query := `SELECT ` + selectAgreementColumns + ` FROM agreements WHERE id = $1`

	a, err := scanAgreement(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, agreement.ErrNotFound
		}

		return nil, fmt.Errorf("getting agreement: %w", err)
	}

	return a, nil
}

func (s *Store) ListAgreements(ctx context.Context, filter agreement.ListFilter) ([]*agreement.Agreement, error) {
	query := `SELECT ` + selectAgreementColumns + ` FROM agreements WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.PartyID != nil {
		query += fmt.Sprintf(" AND party_id = $%d", argIdx)

		args = append(args, *filter.PartyID)
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
		return nil, fmt.Errorf("listing agreements: %w", err)
	}
	defer rows.Close()

	var agreements []*agreement.Agreement

	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agreement: %w", err)
		}

		agreements = append(agreements, a)
	}

	return agreements, rows.Err()
}

func (s *Store) UpdateAgreement(ctx context.Context, a *agreement.Agreement) error {
	terms, err := json.Marshal(a.Terms)
	if err != nil {
		return fmt.Errorf("encoding agreement terms: %w", err)
	}

	var track *string
	if a.Track != nil {
		t := string(*a.Track)
		track = &t
	}

	query := `
		UPDATE agreements
		SET scope = $1, pricing_mode = $2, track = $3, terms = $4, status = $5,
		    vat_mode = $6, vat_country = $7, updated_at = now()
		WHERE id = $8
	`

	_, err = s.db.ExecContext(ctx, query,
		a.Scope, a.PricingMode, track, terms, a.Status, a.VATMode, a.VATCountry, a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agreement: %w", err)
	}

	return nil
}

// Supersede writes the amendment and retires the old version in one
// transaction.
func (s *Store) Supersede(ctx context.Context, old *agreement.Agreement, amendment *agreement.Agreement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.createAgreement(ctx, tx, amendment); err != nil {
		return err
	}

	query := `UPDATE agreements SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, agreement.StatusSuperseded, old.ID); err != nil {
		return fmt.Errorf("retiring superseded agreement: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing supersede: %w", err)
	}

	return nil
}
