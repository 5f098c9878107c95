package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/party"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectPartyColumns = `id, name, role, active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanParty(s scanner) (*party.Party, error) {
	var p party.Party

	var role string

	if err := s.Scan(&p.ID, &p.Name, &role, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Role = party.RoleTag(role)

	return &p, nil
}

func (s *Store) CreateParty(ctx context.Context, p *party.Party) error {
	query := `
		INSERT INTO parties (name, role, active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, p.Name, p.Role, p.Active).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating party: %w", err)
	}

	return nil
}

func (s *Store) GetParty(ctx context.Context, id uuid.UUID) (*party.Party, error) {
	query := `SELECT ` + selectPartyColumns + ` FROM parties WHERE id = $1`

	p, err := scanParty(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, party.ErrNotFound
		}

		return nil, fmt.Errorf("getting party: %w", err)
	}

	return p, nil
}

func (s *Store) ListParties(ctx context.Context, activeOnly bool) ([]*party.Party, error) {
	query := `SELECT ` + selectPartyColumns + ` FROM parties`
	if activeOnly {
		query += ` WHERE active`
	}

	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing parties: %w", err)
	}
	defer rows.Close()

	var parties []*party.Party

	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning party: %w", err)
		}

		parties = append(parties, p)
	}

	return parties, rows.Err()
}

func (s *Store) UpdateParty(ctx context.Context, p *party.Party) error {
	query := `
		UPDATE parties
		SET name = $1, role = $2, active = $3, updated_at = now()
		WHERE id = $4
	`

	_, err := s.db.ExecContext(ctx, query, p.Name, p.Role, p.Active, p.ID)
	if err != nil {
		return fmt.Errorf("updating party: %w", err)
	}

	return nil
}

// DeleteParty refuses to remove a party that agreements still reference.
func (s *Store) DeleteParty(ctx context.Context, id uuid.UUID) error {
	var referenced bool

	check := `SELECT EXISTS (SELECT 1 FROM agreements WHERE party_id = $1)`
	if err := s.db.QueryRowContext(ctx, check, id).Scan(&referenced); err != nil {
		return fmt.Errorf("checking party references: %w", err)
	}

	if referenced {
		return party.ErrReferenced
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM parties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting party: %w", err)
	}

	return nil
}
