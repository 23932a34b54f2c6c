package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
)

// Actor identifies who performed a mutation. A zero Actor means the system itself
// (cron jobs, compensations triggered without a user).
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// SystemActor returns the actor used by background jobs.
func SystemActor() Actor {
	return Actor{}
}

// IsSystem reports whether no user performed the action.
func (a Actor) IsSystem() bool {
	return a.UserID == uuid.Nil
}

// UserRef returns the user id as a nullable column value.
func (a Actor) UserRef() *uuid.UUID {
	if a.IsSystem() {
		return nil
	}
	id := a.UserID
	return &id
}
