package core

import "jababank/models"

// Actor is the caller identity handed to every ledger, loan and flag
// operation. It is trusted as given; each operation applies its own
// ownership and role checks.
type Actor struct {
	UserID uint
	Role   models.Role
	Status models.UserStatus
}

// Can reports whether the actor is active and holds one of roles.
func (a Actor) Can(roles ...models.Role) bool {
	if a.Status != models.StatusActive {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// System is used by operator tooling that acts outside of a user session.
func System() Actor {
	return Actor{Role: models.RoleAdmin, Status: models.StatusActive}
}
