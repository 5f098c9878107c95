package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/RFarrand/commis/internal/audit"
)

// Store persists audit entries. Append-only: there is no update or
// delete path.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (entity, entity_id, action, actor_id, at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := s.db.ExecContext(ctx, query, e.Entity, e.EntityID, e.Action, e.ActorID, e.At, meta); err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}

	return nil
}
