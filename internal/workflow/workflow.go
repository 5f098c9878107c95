// Package workflow holds the types shared by the run and charge state
// machines: actors, roles, approval steps, and the common error
// sentinels workflow transitions surface.
package workflow

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is a coarse RBAC role attached to an actor.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFinance    Role = "finance"
	RoleOperations Role = "operations"
)

// Actor is the resolved caller of a workflow action. Human is false for
// service-to-service callers; some transitions require a human.
type Actor struct {
	ID    string
	Roles []Role
	Human bool
}

func (a Actor) HasRole(roles ...Role) bool {
	for _, want := range roles {
		for _, have := range a.Roles {
			if have == want {
				return true
			}
		}
	}

	return false
}

// EntityKind distinguishes the two workflowed entities sharing the
// approval step table.
type EntityKind string

const (
	KindRun    EntityKind = "run"
	KindCharge EntityKind = "charge"
)

// ApprovalStep is one append-only record of a satisfied workflow stage.
type ApprovalStep struct {
	ID         uuid.UUID
	EntityKind EntityKind
	EntityID   uuid.UUID
	Step       string
	Status     string
	ActorID    string
	ActorRole  Role
	Comment    string
	CreatedAt  time.Time
}

var (
	// ErrValidation covers malformed or missing input, rejected before
	// any state change.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition means the workflow precondition was not met;
	// the entity is unchanged.
	ErrInvalidTransition = errors.New("invalid workflow transition")

	// ErrForbidden covers RBAC and feature-flag denials.
	ErrForbidden = errors.New("forbidden")
)
