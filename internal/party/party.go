package party

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("party not found")

	// ErrReferenced blocks deletion of a party that agreements still
	// point at.
	ErrReferenced = errors.New("party is referenced by agreements")
)

// RoleTag classifies the commercial relationship a party has with us.
type RoleTag string

const (
	RoleDistributor RoleTag = "distributor"
	RoleReferrer    RoleTag = "referrer"
	RolePartner     RoleTag = "partner"
)

type Party struct {
	ID        uuid.UUID
	Name      string
	Role      RoleTag
	Active    bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}
