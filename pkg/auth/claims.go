package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/enums"
)

// AccessTokenClaims is the typed JWT the identity provider issues to clients.
// Tier is advisory only; entitlement checks always read the database.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	Role   enums.Role `json:"role"`
	Tier   enums.Tier `json:"tier,omitempty"`
	jwt.RegisteredClaims
}
