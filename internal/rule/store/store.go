package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/RFarrand/commis/internal/rule"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectRuleColumns = `
	id, name, variant, agreement_id, priority, combinable,
	rate_percent, fixed_amount, threshold, basis, ref_rule_id,
	condition_groups, tiers, effective_from, effective_to,
	version, checksum, active, created_at, updated_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*rule.Rule, error) {
	var r rule.Rule

	var groups, tiers []byte

	if err := s.Scan(
		&r.ID, &r.Name, &r.Variant, &r.AgreementID, &r.Priority, &r.Combinable,
		&r.RatePercent, &r.FixedAmount, &r.Threshold, &r.Basis, &r.RefRuleID,
		&groups, &tiers, &r.EffectiveFrom, &r.EffectiveTo,
		&r.Version, &r.Checksum, &r.Active, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if len(groups) > 0 {
		if err := json.Unmarshal(groups, &r.Groups); err != nil {
			return nil, fmt.Errorf("decoding condition groups: %w", err)
		}
	}

	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &r.Tiers); err != nil {
			return nil, fmt.Errorf("decoding tiers: %w", err)
		}
	}

	return &r, nil
}

func (s *Store) CreateRule(ctx context.Context, r *rule.Rule) error {
	groups, err := json.Marshal(r.Groups)
	if err != nil {
		return fmt.Errorf("encoding condition groups: %w", err)
	}

	tiers, err := json.Marshal(r.Tiers)
	if err != nil {
		return fmt.Errorf("encoding tiers: %w", err)
	}

	query := `
		INSERT INTO commission_rules (
			name, variant, agreement_id, priority, combinable,
			rate_percent, fixed_amount, threshold, basis, ref_rule_id,
			condition_groups, tiers, effective_from, effective_to, version, checksum, active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at
	`

	err = s.db.QueryRowContext(ctx, query,
		r.Name, r.Variant, r.AgreementID, r.Priority, r.Combinable,
		r.RatePercent, r.FixedAmount, r.Threshold, r.Basis, r.RefRuleID,
		groups, tiers, r.EffectiveFrom, r.EffectiveTo, r.Version, r.Checksum, r.Active,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating rule: %w", err)
	}

	return nil
}

func (s *Store) GetRule(ctx context.Context, id uuid.UUID) (*rule.Rule, error) {
	query := `SELECT ` + selectRuleColumns + ` FROM commission_rules WHERE id = $1`

	r, err := scanRule(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, rule.ErrNotFound
		}

		return nil, fmt.Errorf("getting rule: %w", err)
	}

	return r, nil
}

func (s *Store) ListRules(ctx context.Context, filter rule.ListFilter) ([]*rule.Rule, error) {
	query := `SELECT ` + selectRuleColumns + ` FROM commission_rules WHERE 1=1`

	var args []any

	argIdx := 1

	if filter.ActiveOnly {
		query += " AND active"
	}

	if filter.InEffectAt != nil {
		query += fmt.Sprintf(" AND effective_from <= $%d AND (effective_to IS NULL OR effective_to > $%d)", argIdx, argIdx)

		args = append(args, *filter.InEffectAt)
		argIdx++
	}

	if filter.Overlapping != nil {
		query += fmt.Sprintf(" AND effective_from < $%d AND (effective_to IS NULL OR effective_to > $%d)", argIdx, argIdx+1)

		args = append(args, filter.Overlapping.End, filter.Overlapping.Start)
		argIdx += 2
	}

	if filter.AgreementID != nil {
		query += fmt.Sprintf(" AND (agreement_id IS NULL OR agreement_id = $%d)", argIdx)

		args = append(args, *filter.AgreementID)
		argIdx++
	}

	query += " ORDER BY priority ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []*rule.Rule

	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}

		rules = append(rules, r)
	}

	return rules, rows.Err()
}

func (s *Store) UpdateRule(ctx context.Context, r *rule.Rule) error {
	groups, err := json.Marshal(r.Groups)
	if err != nil {
		return fmt.Errorf("encoding condition groups: %w", err)
	}

	tiers, err := json.Marshal(r.Tiers)
	if err != nil {
		return fmt.Errorf("encoding tiers: %w", err)
	}

	query := `
		UPDATE commission_rules
		SET name = $1, variant = $2, agreement_id = $3, priority = $4, combinable = $5,
		    rate_percent = $6, fixed_amount = $7, threshold = $8, basis = $9, ref_rule_id = $10,
		    condition_groups = $11, tiers = $12, effective_from = $13, effective_to = $14,
		    version = $15, checksum = $16, active = $17, updated_at = now()
		WHERE id = $18
	`

	_, err = s.db.ExecContext(ctx, query,
		r.Name, r.Variant, r.AgreementID, r.Priority, r.Combinable,
		r.RatePercent, r.FixedAmount, r.Threshold, r.Basis, r.RefRuleID,
		groups, tiers, r.EffectiveFrom, r.EffectiveTo, r.Version, r.Checksum, r.Active, r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}

	return nil
}

func (s *Store) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE commission_rules SET active = false, updated_at = now() WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivating rule: %w", err)
	}

	return nil
}
