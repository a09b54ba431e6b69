package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
)

// Actor is the caller identity handed to every engine call. How it was
// established is the transport's concern.
type Actor struct {
	ID   uuid.UUID
	Role enums.ActorRole
}

func NewActor(id uuid.UUID, role enums.ActorRole) Actor {
	return Actor{ID: id, Role: role}
}

// Validate rejects actors without an id or with an unknown role.
func (a Actor) Validate() error {
	if a.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	if !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role is invalid")
	}
	return nil
}

func (a Actor) IsVendor() bool   { return a.Role == enums.ActorRoleVendor }
func (a Actor) IsSupplier() bool { return a.Role == enums.ActorRoleSupplier }
func (a Actor) IsAdmin() bool    { return a.Role == enums.ActorRoleAdmin }

// RequireRole validates the actor and checks it holds one of the roles.
func (a Actor) RequireRole(roles ...enums.ActorRole) error {
	if err := a.Validate(); err != nil {
		return err
	}
	for _, role := range roles {
		if a.Role == role {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted for this operation")
}
