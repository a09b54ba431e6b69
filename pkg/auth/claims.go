package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/mandi-backend/pkg/enums"
)

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	Role    enums.ActorRole `json:"role"`
	Name    string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the engine identity.
func (c AccessTokenClaims) Actor() Actor {
	return NewActor(c.ActorID, c.Role)
}
